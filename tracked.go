package beacon

import (
	"fmt"
	"sync"

	"github.com/farolabs/beacon/core"
)

// Tracked is a value whose mutations are recorded as events. Reads and
// writes go through explicit Get and Set calls; each Set emits a
// diagnostic change event naming the tracked value and its old and new
// representations. Tracked values are safe for concurrent use.
type Tracked[T any] struct {
	mu         sync.RWMutex
	value      T
	name       string
	domain     core.Domain
	dispatcher *Dispatcher
	onRead     bool
}

// TrackedOption configures a tracked value.
type TrackedOption func(*trackedConfig)

type trackedConfig struct {
	domain core.Domain
	onRead bool
}

// TrackedIn sets the domain change events are recorded under. The default
// is the config domain.
func TrackedIn(domain core.Domain) TrackedOption {
	return func(c *trackedConfig) {
		c.domain = domain
	}
}

// TrackedReads also records an event on every Get.
func TrackedReads() TrackedOption {
	return func(c *trackedConfig) {
		c.onRead = true
	}
}

// NewTracked wraps an initial value. Events are emitted through d under
// the given name.
func NewTracked[T any](d *Dispatcher, name string, initial T, opts ...TrackedOption) *Tracked[T] {
	cfg := trackedConfig{domain: core.DomainConfig}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Tracked[T]{
		value:      initial,
		name:       name,
		domain:     cfg.domain,
		dispatcher: d,
		onRead:     cfg.onRead,
	}
}

// Get returns the current value.
func (t *Tracked[T]) Get() T {
	t.mu.RLock()
	value := t.value
	t.mu.RUnlock()

	if t.onRead {
		t.dispatcher.Debug(t.domain, core.ActionRead, t.name+" read",
			WithField("name", t.name),
			WithField("value", fmt.Sprintf("%v", value)),
		)
	}
	return value
}

// Set replaces the value and emits a change event carrying the old and
// new representations.
func (t *Tracked[T]) Set(value T) {
	t.mu.Lock()
	old := t.value
	t.value = value
	t.mu.Unlock()

	t.dispatcher.Debug(t.domain, core.ActionChange, t.name+" changed",
		WithField("name", t.name),
		WithField("old", fmt.Sprintf("%v", old)),
		WithField("new", fmt.Sprintf("%v", value)),
	)
}

// Update applies fn to the current value and stores the result, emitting a
// single change event. The lock is held across fn.
func (t *Tracked[T]) Update(fn func(T) T) {
	t.mu.Lock()
	old := t.value
	t.value = fn(old)
	value := t.value
	t.mu.Unlock()

	t.dispatcher.Debug(t.domain, core.ActionChange, t.name+" changed",
		WithField("name", t.name),
		WithField("old", fmt.Sprintf("%v", old)),
		WithField("new", fmt.Sprintf("%v", value)),
	)
}
