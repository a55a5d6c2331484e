package beacon

import (
	"time"

	"github.com/farolabs/beacon/core"
)

// config holds the configuration for building a dispatcher.
type config struct {
	interceptors  []trackedInterceptor
	trackerConfig TrackerConfig
	maskKeys      []string
	maskStrategy  MaskStrategy
	baseFields    map[string]string
	handleTimeout time.Duration
	healthTimeout time.Duration
	recoveryTick  time.Duration
	closeTimeout  time.Duration
}

// trackedInterceptor pairs an interceptor with its tracker overrides.
type trackedInterceptor struct {
	interceptor core.Interceptor
	config      TrackerConfig
	hasConfig   bool
}

// Option is a functional option for configuring a dispatcher.
type Option func(*config)

// WithInterceptor registers an interceptor with default tracker thresholds.
func WithInterceptor(interceptor core.Interceptor) Option {
	return func(c *config) {
		c.interceptors = append(c.interceptors, trackedInterceptor{interceptor: interceptor})
	}
}

// WithInterceptorConfig registers an interceptor with its own tracker thresholds.
func WithInterceptorConfig(interceptor core.Interceptor, cfg TrackerConfig) Option {
	return func(c *config) {
		c.interceptors = append(c.interceptors, trackedInterceptor{
			interceptor: interceptor,
			config:      cfg,
			hasConfig:   true,
		})
	}
}

// WithTrackerConfig sets the default tracker thresholds for interceptors
// registered without their own.
func WithTrackerConfig(cfg TrackerConfig) Option {
	return func(c *config) {
		c.trackerConfig = cfg
	}
}

// WithRecoveryInterval sets how often the dispatcher sweeps failed
// interceptors for recovery. Zero disables the periodic sweep; recovery
// then only happens through RunHealthChecks.
func WithRecoveryInterval(interval time.Duration) Option {
	return func(c *config) {
		c.recoveryTick = interval
	}
}

// WithHandleTimeout bounds each Intercept call. Zero disables the bound.
func WithHandleTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.handleTimeout = timeout
	}
}

// WithHealthCheckTimeout bounds each HealthCheck probe. Zero disables the bound.
func WithHealthCheckTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.healthTimeout = timeout
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight deliveries.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.closeTimeout = timeout
	}
}

// WithBaseFields sets payload entries stamped on every event the
// dispatcher emits, such as a host name or deployment environment.
// Fields set per event win over base fields with the same key.
func WithBaseFields(fields map[string]string) Option {
	return func(c *config) {
		if c.baseFields == nil {
			c.baseFields = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			c.baseFields[k] = v
		}
	}
}

// WithBaseField sets one payload entry stamped on every event.
func WithBaseField(key, value string) Option {
	return func(c *config) {
		if c.baseFields == nil {
			c.baseFields = make(map[string]string, 1)
		}
		c.baseFields[key] = value
	}
}

// WithMaskKeys marks payload keys whose values are masked at event
// creation. Matching is case-insensitive.
func WithMaskKeys(keys ...string) Option {
	return func(c *config) {
		c.maskKeys = append(c.maskKeys, keys...)
	}
}

// WithMaskStrategy sets how masked payload values are rendered.
// The default is MaskRedact.
func WithMaskStrategy(strategy MaskStrategy) Option {
	return func(c *config) {
		c.maskStrategy = strategy
	}
}
