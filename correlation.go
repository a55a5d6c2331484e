package beacon

import (
	"context"
	"maps"

	"github.com/google/uuid"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

// contextValue holds the correlation ID and fields carried by a context.
type contextValue struct {
	correlationID *uuid.UUID
	fields        map[string]string
}

// ContextWithCorrelation returns a context whose correlation ID is applied
// to every event emitted with WithContext. Requests that fan out across
// goroutines keep their grouping by passing the returned context along.
//
//	ctx := beacon.ContextWithCorrelation(r.Context(), requestID)
//	d.Info(core.DomainNetwork, core.ActionStart, "request accepted", beacon.WithContext(ctx))
func ContextWithCorrelation(ctx context.Context, id uuid.UUID) context.Context {
	value := valueFromContext(ctx)
	value.correlationID = &id
	return context.WithValue(parent(ctx), contextKey{}, value)
}

// CorrelationFromContext reports the correlation ID previously attached
// with ContextWithCorrelation, if any.
func CorrelationFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.UUID{}, false
	}
	if v, ok := ctx.Value(contextKey{}).(*contextValue); ok && v.correlationID != nil {
		return *v.correlationID, true
	}
	return uuid.UUID{}, false
}

// PushField returns a context carrying one more payload field. Fields are
// inherited: the returned context includes the parent's fields plus the new
// one. The parent context is never mutated.
func PushField(ctx context.Context, key, value string) context.Context {
	v := valueFromContext(ctx)
	v.fields[key] = value
	return context.WithValue(parent(ctx), contextKey{}, v)
}

// valueFromContext copies the context's carried value so the caller can
// extend it without mutating the original.
func valueFromContext(ctx context.Context) *contextValue {
	value := &contextValue{fields: make(map[string]string)}
	if ctx == nil {
		return value
	}
	if existing, ok := ctx.Value(contextKey{}).(*contextValue); ok {
		value.correlationID = existing.correlationID
		maps.Copy(value.fields, existing.fields)
	}
	return value
}

func parent(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithContext applies the correlation ID and fields carried by ctx to the
// event. Context values have the lowest precedence: fields and correlation
// set by other options win regardless of option order.
func WithContext(ctx context.Context) EventOption {
	return func(dr *eventDraft) {
		if ctx == nil {
			return
		}
		v, ok := ctx.Value(contextKey{}).(*contextValue)
		if !ok {
			return
		}
		if v.correlationID != nil && dr.correlationID == nil {
			dr.correlationID = v.correlationID
		}
		for key, value := range v.fields {
			if _, exists := dr.payload[key]; !exists {
				dr.set(key, value)
			}
		}
	}
}
