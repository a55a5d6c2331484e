package interceptors

import (
	"context"
	"sync"

	"github.com/farolabs/beacon/core"
)

// Memory stores events in memory for testing purposes.
type Memory struct {
	events []core.Event
	mu     sync.RWMutex
}

// NewMemory creates a new memory interceptor.
func NewMemory() *Memory {
	return &Memory{
		events: make([]core.Event, 0),
	}
}

// Name identifies the interceptor in health reports.
func (m *Memory) Name() string {
	return "memory"
}

// Intercept stores the event in memory.
func (m *Memory) Intercept(ctx context.Context, event *core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy the payload so later inspection never races the caller
	eventCopy := *event
	if event.Payload != nil {
		eventCopy.Payload = make(map[string]string, len(event.Payload))
		for k, v := range event.Payload {
			eventCopy.Payload[k] = v
		}
	}

	m.events = append(m.events, eventCopy)
	return nil
}

// HealthCheck always succeeds.
func (m *Memory) HealthCheck(ctx context.Context) error {
	return nil
}

// Events returns a copy of all stored events.
func (m *Memory) Events() []core.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]core.Event, len(m.events))
	copy(result, m.events)
	return result
}

// Clear removes all stored events.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}

// Count returns the number of stored events.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// FindEvents returns events that match the given predicate.
func (m *Memory) FindEvents(predicate func(*core.Event) bool) []core.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []core.Event
	for _, event := range m.events {
		if predicate(&event) {
			result = append(result, event)
		}
	}
	return result
}

// HasEvent returns true if any event matches the predicate.
func (m *Memory) HasEvent(predicate func(*core.Event) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, event := range m.events {
		if predicate(&event) {
			return true
		}
	}
	return false
}

// LastEvent returns the most recent event, or nil if no events.
func (m *Memory) LastEvent() *core.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return nil
	}

	event := m.events[len(m.events)-1]
	return &event
}
