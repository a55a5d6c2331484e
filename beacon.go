// Package beacon provides client-side event dispatch with health-managed
// interceptors.
//
// A Dispatcher fans each event out to every registered interceptor
// concurrently. Each interceptor is supervised by a health tracker:
// interceptors that fail repeatedly are excluded from delivery and probed
// for recovery on a fixed interval, so one broken destination never affects
// the others or the code emitting events.
//
// Basic usage:
//
//	d := beacon.New(
//	    beacon.WithInterceptor(interceptors.NewConsole()),
//	)
//	defer d.Close()
//
//	d.Info(core.DomainLifecycle, core.ActionStart, "application started")
package beacon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/selflog"
)

const (
	defaultHandleTimeout      = 30 * time.Second
	defaultHealthCheckTimeout = 5 * time.Second
	defaultShutdownTimeout    = 30 * time.Second
)

// Dispatcher creates events and fans them out to registered interceptors.
//
// Emitting never blocks on delivery and never returns an error: events are
// handed to interceptors on background goroutines, and delivery failures
// are absorbed by the per-interceptor health trackers. Use HealthStatus to
// observe delivery problems, or enable selflog for diagnostics.
type Dispatcher struct {
	mu       sync.RWMutex
	trackers []*HealthTracker
	closed   bool

	trackerConfig TrackerConfig
	masks         *maskSet
	baseFields    map[string]string
	handleTimeout time.Duration
	healthTimeout time.Duration
	closeTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	inflight sync.WaitGroup // delivery goroutines
	loopWG   sync.WaitGroup // recovery loop goroutine
	pending  atomic.Int64   // deliveries not yet finished
}

// New creates a dispatcher.
//
// Without options the dispatcher starts with no interceptors, default
// tracker thresholds, a 30s recovery sweep, and bounded delivery and
// health-check calls.
func New(opts ...Option) *Dispatcher {
	cfg := &config{
		handleTimeout: defaultHandleTimeout,
		healthTimeout: defaultHealthCheckTimeout,
		recoveryTick:  defaultRecoveryInterval,
		closeTimeout:  defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		trackerConfig: cfg.trackerConfig,
		masks:         newMaskSet(cfg.maskKeys, cfg.maskStrategy),
		baseFields:    cfg.baseFields,
		handleTimeout: cfg.handleTimeout,
		healthTimeout: cfg.healthTimeout,
		closeTimeout:  cfg.closeTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}

	for _, ti := range cfg.interceptors {
		tc := d.trackerConfig
		if ti.hasConfig {
			tc = ti.config
		}
		d.trackers = append(d.trackers, NewHealthTrackerWithConfig(ti.interceptor, tc))
	}

	if cfg.recoveryTick > 0 {
		d.loopWG.Add(1)
		go d.runRecoveryLoop(cfg.recoveryTick)
	}

	return d
}

// Emit creates an event and schedules its delivery to every healthy
// interceptor. The event is returned immediately; delivery happens on
// background goroutines and failures never propagate to the caller.
func (d *Dispatcher) Emit(severity core.Severity, domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	event := d.newEvent(severity, domain, action, message, opts...)
	d.dispatch(event)
	return event
}

// Debug emits a debug-severity event.
func (d *Dispatcher) Debug(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityDebug, domain, action, message, opts...)
}

// Info emits an info-severity event.
func (d *Dispatcher) Info(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityInfo, domain, action, message, opts...)
}

// Notice emits a notice-severity event.
func (d *Dispatcher) Notice(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityNotice, domain, action, message, opts...)
}

// Warning emits a warning-severity event.
func (d *Dispatcher) Warning(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityWarning, domain, action, message, opts...)
}

// Error emits an error-severity event.
func (d *Dispatcher) Error(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityError, domain, action, message, opts...)
}

// Fault emits a fault-severity event.
func (d *Dispatcher) Fault(domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	return d.Emit(core.SeverityFault, domain, action, message, opts...)
}

func (d *Dispatcher) newEvent(severity core.Severity, domain core.Domain, action core.Action, message string, opts ...EventOption) *core.Event {
	var draft eventDraft
	for _, opt := range opts {
		opt(&draft)
	}
	return d.buildEvent(severity, domain, action, message, &draft)
}

// buildEvent builds the immutable event. All emission paths go through
// here, so base fields, payload copying, and masking happen exactly once.
func (d *Dispatcher) buildEvent(severity core.Severity, domain core.Domain, action core.Action, message string, draft *eventDraft) *core.Event {
	var payload map[string]string
	if len(draft.payload) > 0 || len(d.baseFields) > 0 {
		payload = make(map[string]string, len(draft.payload)+len(d.baseFields))
		for k, v := range d.baseFields {
			payload[k] = d.masks.apply(k, v)
		}
		for k, v := range draft.payload {
			payload[k] = d.masks.apply(k, v)
		}
	}

	return &core.Event{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Severity:      severity,
		Purpose:       draft.purpose,
		Domain:        domain,
		Action:        action,
		Message:       message,
		Payload:       payload,
		Critical:      draft.critical,
		CorrelationID: draft.correlationID,
	}
}

// dispatch fans the event out to every healthy interceptor, one goroutine
// per interceptor. Trackers are snapshotted under the read lock so
// concurrent registration doesn't affect an in-flight fan-out.
func (d *Dispatcher) dispatch(event *core.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		if selflog.IsEnabled() {
			selflog.Printf("[dispatch] dropping event %s: dispatcher closed", event.EventID())
		}
		return
	}

	if len(d.trackers) == 0 {
		d.mu.RUnlock()
		if selflog.IsEnabled() {
			selflog.Printf("[dispatch] no interceptors registered, dropping event %s", event.EventID())
		}
		return
	}

	eligible := make([]*HealthTracker, 0, len(d.trackers))
	for _, t := range d.trackers {
		if t.CanHandleEvents() {
			eligible = append(eligible, t)
		} else if event.Critical && selflog.IsEnabled() {
			selflog.Printf("[dispatch] critical event %s not delivered to %s (%s)", event.EventID(), t.Name(), t.State())
		}
	}

	// The WaitGroup grows only while the read lock is held, so Close
	// (which flips closed under the write lock) never races an Add.
	d.inflight.Add(len(eligible))
	d.pending.Add(int64(len(eligible)))
	d.mu.RUnlock()

	for _, t := range eligible {
		go func(t *HealthTracker) {
			defer d.inflight.Done()
			defer d.pending.Add(-1)

			ctx := d.ctx
			if d.handleTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d.handleTimeout)
				defer cancel()
			}
			t.Deliver(ctx, event)
		}(t)
	}
}

// AddInterceptor registers an interceptor with the dispatcher's default
// tracker thresholds. The interceptor starts healthy and receives events
// emitted after registration. Registering an interceptor again always
// starts it with a clean tracker; earlier registrations are unaffected.
func (d *Dispatcher) AddInterceptor(interceptor core.Interceptor) {
	d.AddInterceptorConfig(interceptor, d.trackerConfig)
}

// AddInterceptorConfig registers an interceptor with its own tracker
// thresholds.
func (d *Dispatcher) AddInterceptorConfig(interceptor core.Interceptor, cfg TrackerConfig) {
	tracker := NewHealthTrackerWithConfig(interceptor, cfg)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if selflog.IsEnabled() {
			selflog.Printf("[dispatch] ignoring AddInterceptor(%s): dispatcher closed", interceptor.Name())
		}
		return
	}
	d.trackers = append(d.trackers, tracker)
}

// HealthStatus returns a snapshot of every tracker in registration order.
// The snapshot is consistent per interceptor, not across interceptors.
func (d *Dispatcher) HealthStatus() []InterceptorHealth {
	d.mu.RLock()
	trackers := make([]*HealthTracker, len(d.trackers))
	copy(trackers, d.trackers)
	d.mu.RUnlock()

	statuses := make([]InterceptorHealth, len(trackers))
	for i, t := range trackers {
		statuses[i] = t.Health()
	}
	return statuses
}

// RunHealthChecks probes every failed interceptor whose recovery interval
// has elapsed, concurrently, and waits for the probes to finish. It is
// called by the periodic recovery loop and may also be called directly.
func (d *Dispatcher) RunHealthChecks(ctx context.Context) {
	d.mu.RLock()
	trackers := make([]*HealthTracker, len(d.trackers))
	copy(trackers, d.trackers)
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range trackers {
		if !t.ShouldAttemptRecovery() {
			continue
		}
		wg.Add(1)
		go func(t *HealthTracker) {
			defer wg.Done()

			probeCtx := ctx
			if d.healthTimeout > 0 {
				var cancel context.CancelFunc
				probeCtx, cancel = context.WithTimeout(ctx, d.healthTimeout)
				defer cancel()
			}
			t.AttemptRecovery(probeCtx)
		}(t)
	}
	wg.Wait()
}

// runRecoveryLoop sweeps failed interceptors until the dispatcher closes.
func (d *Dispatcher) runRecoveryLoop(interval time.Duration) {
	defer d.loopWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.RunHealthChecks(d.ctx)
		}
	}
}

// Flush blocks until all scheduled deliveries have finished or the context
// is cancelled. This is useful for testing or graceful handover scenarios.
func (d *Dispatcher) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.pending.Load() == 0 {
				return nil
			}
		}
	}
}

// Close shuts the dispatcher down: it stops accepting new deliveries,
// waits up to the shutdown timeout for in-flight deliveries, stops the
// recovery loop, and closes every interceptor that implements
// Close() error. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	trackers := make([]*HealthTracker, len(d.trackers))
	copy(trackers, d.trackers)
	d.mu.Unlock()

	var timeoutErr error
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.closeTimeout):
		timeoutErr = fmt.Errorf("timeout waiting for in-flight deliveries")
	}

	// Cancelling after the drain lets deliveries finish naturally; the
	// stragglers that outlived the timeout see a cancelled context.
	d.cancel()
	d.loopWG.Wait()

	var firstErr error
	for _, t := range trackers {
		if closer, ok := t.interceptor.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if timeoutErr != nil {
		return timeoutErr
	}
	return firstErr
}
