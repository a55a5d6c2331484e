package core

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a single recorded occurrence with all its properties.
//
// Events are built once by the dispatcher and never modified afterwards.
// Interceptors notified of the same event share it read-only.
type Event struct {
	// ID uniquely identifies this event.
	ID uuid.UUID

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Severity is how serious the event is.
	Severity Severity

	// Purpose is why the event is recorded.
	Purpose Purpose

	// Domain is the functional area the event belongs to.
	Domain Domain

	// Action is what happened within the domain.
	Action Action

	// Message is the human-readable description.
	Message string

	// Payload carries supplemental key/value context.
	Payload map[string]string

	// Critical marks events that should not be silently dropped downstream.
	Critical bool

	// CorrelationID groups related events, if set.
	CorrelationID *uuid.UUID
}

// EventID returns the derived "domain.action" identifier.
func (e *Event) EventID() string {
	return e.Domain.Name() + "." + e.Action.Name()
}
