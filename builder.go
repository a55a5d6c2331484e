package beacon

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/google/uuid"

	"github.com/farolabs/beacon/core"
)

// eventDraft accumulates the optional parts of an event before it is built.
type eventDraft struct {
	purpose       core.Purpose
	payload       map[string]string
	critical      bool
	correlationID *uuid.UUID
}

func (dr *eventDraft) set(key, value string) {
	if dr.payload == nil {
		dr.payload = make(map[string]string)
	}
	dr.payload[key] = value
}

// EventOption customizes a single event at emission time.
type EventOption func(*eventDraft)

// WithPurpose sets why the event is recorded. The default is
// PurposeDiagnostic.
func WithPurpose(purpose core.Purpose) EventOption {
	return func(dr *eventDraft) {
		dr.purpose = purpose
	}
}

// WithField adds one payload entry.
func WithField(key, value string) EventOption {
	return func(dr *eventDraft) {
		dr.set(key, value)
	}
}

// WithPayload merges entries into the event payload. Later entries win.
func WithPayload(payload map[string]string) EventOption {
	return func(dr *eventDraft) {
		for k, v := range payload {
			dr.set(k, v)
		}
	}
}

// WithCritical marks the event as one that should not be silently dropped
// downstream.
func WithCritical() EventOption {
	return func(dr *eventDraft) {
		dr.critical = true
	}
}

// WithCorrelation groups the event with others under a correlation ID.
func WithCorrelation(id uuid.UUID) EventOption {
	return func(dr *eventDraft) {
		dr.correlationID = &id
	}
}

// EventBuilder assembles an event step by step. Builders are cheap,
// single-use, and not safe for concurrent use.
//
//	d.NewEvent().
//	    Severity(core.SeverityWarning).
//	    Domain(core.DomainNetwork).
//	    Action(core.ActionFail).
//	    Messagef("request to %s failed", host).
//	    Field("host", host).
//	    Emit()
type EventBuilder struct {
	dispatcher *Dispatcher
	severity   core.Severity
	domain     core.Domain
	action     core.Action
	message    string
	draft      eventDraft
}

// NewEvent starts a builder. Severity defaults to info and purpose to
// diagnostic until set.
func (d *Dispatcher) NewEvent() *EventBuilder {
	return &EventBuilder{
		dispatcher: d,
		severity:   core.SeverityInfo,
	}
}

// Severity sets the event severity.
func (b *EventBuilder) Severity(severity core.Severity) *EventBuilder {
	b.severity = severity
	return b
}

// Purpose sets why the event is recorded.
func (b *EventBuilder) Purpose(purpose core.Purpose) *EventBuilder {
	b.draft.purpose = purpose
	return b
}

// Domain sets the functional area.
func (b *EventBuilder) Domain(domain core.Domain) *EventBuilder {
	b.domain = domain
	return b
}

// Action sets what happened.
func (b *EventBuilder) Action(action core.Action) *EventBuilder {
	b.action = action
	return b
}

// Message sets the human-readable description.
func (b *EventBuilder) Message(message string) *EventBuilder {
	b.message = message
	return b
}

// Messagef sets the description from a format string.
func (b *EventBuilder) Messagef(format string, args ...any) *EventBuilder {
	b.message = fmt.Sprintf(format, args...)
	return b
}

// Field adds one payload entry.
func (b *EventBuilder) Field(key, value string) *EventBuilder {
	b.draft.set(key, value)
	return b
}

// Fields merges entries into the payload. Later entries win.
func (b *EventBuilder) Fields(fields map[string]string) *EventBuilder {
	for k, v := range fields {
		b.draft.set(k, v)
	}
	return b
}

// Critical marks the event as one that should not be silently dropped
// downstream.
func (b *EventBuilder) Critical() *EventBuilder {
	b.draft.critical = true
	return b
}

// CorrelatedWith groups the event with others under a correlation ID.
func (b *EventBuilder) CorrelatedWith(id uuid.UUID) *EventBuilder {
	b.draft.correlationID = &id
	return b
}

// CaptureSource records the caller's file and line in the "source"
// payload entry.
func (b *EventBuilder) CaptureSource() *EventBuilder {
	if _, file, line, ok := runtime.Caller(1); ok {
		b.draft.set("source", filepath.Base(file)+":"+strconv.Itoa(line))
	}
	return b
}

// Emit builds the event and schedules its delivery, like Dispatcher.Emit.
func (b *EventBuilder) Emit() *core.Event {
	event := b.dispatcher.buildEvent(b.severity, b.domain, b.action, b.message, &b.draft)
	b.dispatcher.dispatch(event)
	return event
}
