package beacon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/selflog"
)

// HealthState represents the state of an interceptor's health tracker.
type HealthState int32

const (
	// StateHealthy allows events through (normal operation).
	StateHealthy HealthState = iota
	// StateFailed excludes the interceptor from delivery until it recovers.
	StateFailed
	// StateRecovering marks an in-flight recovery probe.
	StateRecovering
)

func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateFailed:
		return "failed"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// TrackerConfig configures a health tracker.
type TrackerConfig struct {
	MaxConsecutiveFailures int           // Failures before excluding the interceptor
	RecoveryInterval       time.Duration // Wait between recovery attempts
	MaxRecoveryAttempts    int           // Attempts before giving up permanently
}

const (
	defaultMaxConsecutiveFailures = 3
	defaultRecoveryInterval       = 30 * time.Second
	defaultMaxRecoveryAttempts    = 5
)

// HealthTracker supervises one interceptor: it counts consecutive delivery
// failures, excludes the interceptor once the threshold is reached, and
// probes it for recovery on a fixed interval until it either comes back or
// exhausts its recovery attempts.
type HealthTracker struct {
	interceptor core.Interceptor
	config      TrackerConfig

	state            atomic.Int32 // HealthState
	failures         atomic.Int32 // consecutive delivery failures
	recoveryAttempts atomic.Int32
	lastFailTime     atomic.Int64 // Unix nano

	mu sync.Mutex // For state transitions
}

// NewHealthTracker creates a tracker with default thresholds.
func NewHealthTracker(interceptor core.Interceptor) *HealthTracker {
	return NewHealthTrackerWithConfig(interceptor, TrackerConfig{})
}

// NewHealthTrackerWithConfig creates a tracker with custom thresholds.
// Zero or negative fields fall back to the defaults.
func NewHealthTrackerWithConfig(interceptor core.Interceptor, config TrackerConfig) *HealthTracker {
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = defaultRecoveryInterval
	}
	if config.MaxRecoveryAttempts <= 0 {
		config.MaxRecoveryAttempts = defaultMaxRecoveryAttempts
	}

	t := &HealthTracker{
		interceptor: interceptor,
		config:      config,
	}
	t.state.Store(int32(StateHealthy))
	return t
}

// Name returns the supervised interceptor's name.
func (t *HealthTracker) Name() string {
	return t.interceptor.Name()
}

// State returns the current health state.
func (t *HealthTracker) State() HealthState {
	return HealthState(t.state.Load())
}

// CanHandleEvents reports whether the interceptor should receive events.
// Only healthy interceptors receive events; failed and recovering ones are
// skipped until a probe succeeds.
func (t *HealthTracker) CanHandleEvents() bool {
	return t.State() == StateHealthy
}

// IsPermanentlyFailed reports whether the tracker has exhausted its
// recovery attempts. A permanently failed interceptor is never probed again.
func (t *HealthTracker) IsPermanentlyFailed() bool {
	return t.State() == StateFailed &&
		int(t.recoveryAttempts.Load()) >= t.config.MaxRecoveryAttempts
}

// Deliver sends one event to the interceptor and records the outcome.
// Panics inside the interceptor are recovered and counted as failures.
// It returns true if the interceptor accepted the event.
func (t *HealthTracker) Deliver(ctx context.Context, event *core.Event) bool {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{value: r}
				if selflog.IsEnabled() {
					selflog.Printf("[dispatch] interceptor %q panicked: %v", t.Name(), r)
				}
			}
		}()
		err = t.interceptor.Intercept(ctx, event)
	}()

	if err != nil {
		if selflog.IsEnabled() {
			selflog.Printf("[dispatch] interceptor %q failed: %v (event=%s)", t.Name(), err, event.EventID())
		}
		t.RecordFailure()
		return false
	}
	t.RecordSuccess()
	return true
}

// RecordSuccess resets the failure count and restores the tracker to
// healthy. A success during recovery completes the recovery.
func (t *HealthTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures.Store(0)

	oldState := t.State()
	if oldState != StateHealthy {
		t.state.Store(int32(StateHealthy))
		t.recoveryAttempts.Store(0)
		t.lastFailTime.Store(0)

		if selflog.IsEnabled() {
			selflog.Printf("[tracker] %s healthy (was %s)", t.Name(), oldState)
		}
	}
}

// RecordFailure counts one delivery failure. Reaching the configured
// threshold excludes the interceptor from further delivery.
func (t *HealthTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastFailTime.Store(time.Now().UnixNano())
	failures := t.failures.Add(1)

	if t.State() == StateHealthy && int(failures) >= t.config.MaxConsecutiveFailures {
		t.state.Store(int32(StateFailed))

		if selflog.IsEnabled() {
			selflog.Printf("[tracker] %s failed after %d consecutive failures", t.Name(), failures)
		}
	}
}

// ShouldAttemptRecovery reports whether a recovery probe is due: the
// tracker is failed, attempts remain, and the recovery interval has
// elapsed since the last failure.
func (t *HealthTracker) ShouldAttemptRecovery() bool {
	if t.State() != StateFailed {
		return false
	}
	if int(t.recoveryAttempts.Load()) >= t.config.MaxRecoveryAttempts {
		return false
	}

	lastFail := t.lastFailTime.Load()
	if lastFail == 0 {
		return false
	}
	return time.Since(time.Unix(0, lastFail)) >= t.config.RecoveryInterval
}

// AttemptRecovery probes the interceptor's health once, provided a probe
// is due per ShouldAttemptRecovery. On success the tracker returns to
// healthy and resumes delivery; on failure it stays failed and the
// recovery interval restarts. Exhausting the attempt cap leaves the
// tracker permanently failed. It returns true if the interceptor
// recovered.
func (t *HealthTracker) AttemptRecovery(ctx context.Context) bool {
	t.mu.Lock()
	if !t.ShouldAttemptRecovery() {
		t.mu.Unlock()
		return false
	}
	t.state.Store(int32(StateRecovering))
	attempt := t.recoveryAttempts.Add(1)
	t.mu.Unlock()

	if selflog.IsEnabled() {
		selflog.Printf("[tracker] %s recovery attempt %d/%d", t.Name(), attempt, t.config.MaxRecoveryAttempts)
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &panicError{value: r}
			}
		}()
		err = t.interceptor.HealthCheck(ctx)
	}()

	if err != nil {
		t.mu.Lock()
		t.state.Store(int32(StateFailed))
		t.lastFailTime.Store(time.Now().UnixNano())
		t.mu.Unlock()

		if selflog.IsEnabled() {
			if int(attempt) >= t.config.MaxRecoveryAttempts {
				selflog.Printf("[tracker] %s permanently failed after %d recovery attempts: %v", t.Name(), attempt, err)
			} else {
				selflog.Printf("[tracker] %s recovery attempt %d failed: %v", t.Name(), attempt, err)
			}
		}
		return false
	}

	t.RecordSuccess()
	return true
}

// Health returns a point-in-time snapshot of the tracker.
func (t *HealthTracker) Health() InterceptorHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lastFailure time.Time
	if nanos := t.lastFailTime.Load(); nanos != 0 {
		lastFailure = time.Unix(0, nanos)
	}

	state := t.State()
	return InterceptorHealth{
		Name:                t.Name(),
		State:               state,
		CanHandleEvents:     state == StateHealthy,
		ConsecutiveFailures: int(t.failures.Load()),
		RecoveryAttempts:    int(t.recoveryAttempts.Load()),
		PermanentlyFailed:   state == StateFailed && int(t.recoveryAttempts.Load()) >= t.config.MaxRecoveryAttempts,
		LastFailure:         lastFailure,
	}
}

// InterceptorHealth is a point-in-time snapshot of one tracker.
type InterceptorHealth struct {
	Name                string      `json:"name"`
	State               HealthState `json:"state"`
	CanHandleEvents     bool        `json:"canHandleEvents"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	RecoveryAttempts    int         `json:"recoveryAttempts"`
	PermanentlyFailed   bool        `json:"permanentlyFailed"`
	LastFailure         time.Time   `json:"lastFailure"`
}

// panicError wraps a recovered panic value as an error.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
