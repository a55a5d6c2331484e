package core

import "context"

// Interceptor receives dispatched events and reports on its own health.
//
// Intercept returns nil when the event was accepted by the destination.
// Intercept and HealthCheck may be called concurrently with each other;
// implementations guard their own state. Interceptors holding resources
// should additionally implement Close() error, which the dispatcher calls
// during shutdown.
type Interceptor interface {
	// Name identifies the interceptor in health reports and diagnostics.
	Name() string

	// Intercept delivers one event to the destination.
	Intercept(ctx context.Context, event *Event) error

	// HealthCheck probes whether the destination can accept events.
	HealthCheck(ctx context.Context) error
}
