package beacon

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/farolabs/beacon/core"
	"github.com/farolabs/beacon/selflog"
)

// captureInterceptor records every event it receives
type captureInterceptor struct {
	name   string
	mu     sync.Mutex
	events []*core.Event
}

func newCapture(name string) *captureInterceptor {
	return &captureInterceptor{name: name}
}

func (c *captureInterceptor) Name() string { return c.name }

func (c *captureInterceptor) Intercept(ctx context.Context, event *core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureInterceptor) HealthCheck(ctx context.Context) error { return nil }

func (c *captureInterceptor) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *captureInterceptor) Events() []*core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]*core.Event, len(c.events))
	copy(events, c.events)
	return events
}

// closableInterceptor tracks whether Close was called
type closableInterceptor struct {
	captureInterceptor
	closed atomic.Bool
}

func (c *closableInterceptor) Close() error {
	c.closed.Store(true)
	return nil
}

// blockingInterceptor holds every delivery until its context is done
type blockingInterceptor struct{}

func (b *blockingInterceptor) Name() string { return "blocking" }

func (b *blockingInterceptor) Intercept(ctx context.Context, event *core.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingInterceptor) HealthCheck(ctx context.Context) error { return nil }

func flushed(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func TestDispatcherEmit(t *testing.T) {
	t.Run("returns the event synchronously", func(t *testing.T) {
		d := New()
		defer d.Close()

		before := time.Now()
		event := d.Emit(core.SeverityWarning, core.DomainNetwork, core.ActionFail, "request failed",
			WithField("host", "example.com"),
			WithPurpose(core.PurposeOperational),
			WithCritical(),
		)

		if event == nil {
			t.Fatal("Expected an event")
		}
		if event.ID == uuid.Nil {
			t.Error("Expected a non-zero event ID")
		}
		if event.Timestamp.Before(before) {
			t.Error("Expected timestamp at emission time")
		}
		if event.Severity != core.SeverityWarning {
			t.Errorf("Expected warning severity, got %s", event.Severity)
		}
		if event.EventID() != "network.fail" {
			t.Errorf("Expected event ID network.fail, got %s", event.EventID())
		}
		if event.Message != "request failed" {
			t.Errorf("Unexpected message: %s", event.Message)
		}
		if event.Payload["host"] != "example.com" {
			t.Errorf("Unexpected payload: %v", event.Payload)
		}
		if event.Purpose != core.PurposeOperational {
			t.Errorf("Expected operational purpose, got %s", event.Purpose)
		}
		if !event.Critical {
			t.Error("Expected critical flag")
		}
		if event.CorrelationID != nil {
			t.Error("Expected no correlation ID by default")
		}
	})

	t.Run("every event gets a distinct ID", func(t *testing.T) {
		d := New()
		defer d.Close()

		first := d.Info(core.DomainLifecycle, core.ActionStart, "one")
		second := d.Info(core.DomainLifecycle, core.ActionStart, "two")

		if first.ID == second.ID {
			t.Error("Expected distinct event IDs")
		}
	})

	t.Run("payload is copied at emission", func(t *testing.T) {
		d := New()
		defer d.Close()

		payload := map[string]string{"key": "original"}
		event := d.Info(core.DomainConfig, core.ActionChange, "changed", WithPayload(payload))

		payload["key"] = "mutated"
		payload["extra"] = "late"

		if event.Payload["key"] != "original" {
			t.Errorf("Expected payload copy, got %q", event.Payload["key"])
		}
		if _, ok := event.Payload["extra"]; ok {
			t.Error("Expected later map mutations to be invisible")
		}
	})

	t.Run("severity helpers map to severities", func(t *testing.T) {
		d := New()
		defer d.Close()

		tests := []struct {
			emit     func(core.Domain, core.Action, string, ...EventOption) *core.Event
			expected core.Severity
		}{
			{d.Debug, core.SeverityDebug},
			{d.Info, core.SeverityInfo},
			{d.Notice, core.SeverityNotice},
			{d.Warning, core.SeverityWarning},
			{d.Error, core.SeverityError},
			{d.Fault, core.SeverityFault},
		}

		for _, tt := range tests {
			event := tt.emit(core.DomainLifecycle, core.ActionStart, "msg")
			if event.Severity != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, event.Severity)
			}
		}
	})

	t.Run("masked keys are rewritten at emission", func(t *testing.T) {
		d := New(WithMaskKeys("password", "Token"))
		defer d.Close()

		event := d.Info(core.DomainAuth, core.ActionSubmit, "login",
			WithField("PASSWORD", "hunter2"),
			WithField("token", "abc123"),
			WithField("user", "ada"),
		)

		if event.Payload["PASSWORD"] != "[redacted]" {
			t.Errorf("Expected masked password, got %q", event.Payload["PASSWORD"])
		}
		if event.Payload["token"] != "[redacted]" {
			t.Errorf("Expected masked token, got %q", event.Payload["token"])
		}
		if event.Payload["user"] != "ada" {
			t.Errorf("Expected user untouched, got %q", event.Payload["user"])
		}
	})
}

func TestDispatcherFanOut(t *testing.T) {
	t.Run("events reach every healthy interceptor", func(t *testing.T) {
		first := newCapture("first")
		second := newCapture("second")
		d := New(WithInterceptor(first), WithInterceptor(second))
		defer d.Close()

		for i := 0; i < 3; i++ {
			d.Info(core.DomainLifecycle, core.ActionStart, "event")
		}
		flushed(t, d)

		if first.Count() != 3 {
			t.Errorf("Expected 3 events at first, got %d", first.Count())
		}
		if second.Count() != 3 {
			t.Errorf("Expected 3 events at second, got %d", second.Count())
		}
	})

	t.Run("one failing interceptor never affects the others", func(t *testing.T) {
		failing := &flakyInterceptor{name: "failing"}
		failing.failDelivery.Store(true)
		healthy := newCapture("healthy")

		d := New(
			WithInterceptor(failing),
			WithInterceptor(healthy),
			WithTrackerConfig(TrackerConfig{MaxConsecutiveFailures: 3}),
		)
		defer d.Close()

		for i := 0; i < 5; i++ {
			d.Info(core.DomainNetwork, core.ActionSubmit, "payload")
		}
		flushed(t, d)

		if healthy.Count() != 5 {
			t.Errorf("Expected healthy interceptor to receive all 5 events, got %d", healthy.Count())
		}
	})

	t.Run("panicking interceptor never affects the caller", func(t *testing.T) {
		panicking := &flakyInterceptor{name: "panicking"}
		panicking.panicDelivery.Store(true)

		d := New(WithInterceptor(panicking))
		defer d.Close()

		event := d.Info(core.DomainLifecycle, core.ActionStart, "survives")
		flushed(t, d)

		if event == nil {
			t.Fatal("Expected emit to return despite the panic")
		}
	})

	t.Run("failed interceptor stops receiving events", func(t *testing.T) {
		failing := &flakyInterceptor{name: "failing"}
		failing.failDelivery.Store(true)

		d := New(WithInterceptorConfig(failing, TrackerConfig{MaxConsecutiveFailures: 1}))
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "one")
		flushed(t, d)

		// Tracker is failed now; further events must not reach it
		for i := 0; i < 3; i++ {
			d.Info(core.DomainNetwork, core.ActionSubmit, "more")
		}
		flushed(t, d)

		if got := failing.interceptCount.Load(); got != 1 {
			t.Errorf("Expected exactly 1 delivery, got %d", got)
		}
	})

	t.Run("no interceptors means events are dropped quietly", func(t *testing.T) {
		d := New()
		defer d.Close()

		event := d.Info(core.DomainLifecycle, core.ActionStart, "nowhere to go")
		if event == nil {
			t.Fatal("Expected an event even with no interceptors")
		}
		if len(d.HealthStatus()) != 0 {
			t.Errorf("Expected empty health status, got %v", d.HealthStatus())
		}
	})

	t.Run("skipped critical events are reported to selflog", func(t *testing.T) {
		var mu sync.Mutex
		var lines []string
		selflog.EnableFunc(func(msg string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, msg)
		})
		defer selflog.Disable()

		failing := &flakyInterceptor{name: "gone"}
		failing.failDelivery.Store(true)
		d := New(WithInterceptorConfig(failing, TrackerConfig{MaxConsecutiveFailures: 1}))
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "trip the tracker")
		flushed(t, d)

		d.Emit(core.SeverityError, core.DomainPayment, core.ActionSubmit, "must not vanish", WithCritical())
		flushed(t, d)

		mu.Lock()
		defer mu.Unlock()
		found := false
		for _, line := range lines {
			if strings.Contains(line, "critical event payment.submit not delivered") {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected a selflog line about the skipped critical event, got %v", lines)
		}
	})

	t.Run("interceptors added later receive later events only", func(t *testing.T) {
		first := newCapture("first")
		d := New(WithInterceptor(first))
		defer d.Close()

		d.Info(core.DomainLifecycle, core.ActionStart, "early")

		late := newCapture("late")
		d.AddInterceptor(late)

		d.Info(core.DomainLifecycle, core.ActionStop, "late")
		flushed(t, d)

		if first.Count() != 2 {
			t.Errorf("Expected first interceptor to see both events, got %d", first.Count())
		}
		if late.Count() != 1 {
			t.Errorf("Expected late interceptor to see one event, got %d", late.Count())
		}
		if late.Count() == 1 && late.Events()[0].Message != "late" {
			t.Errorf("Expected only the late event, got %q", late.Events()[0].Message)
		}
	})

	t.Run("re-adding an interceptor starts a clean tracker", func(t *testing.T) {
		failing := &flakyInterceptor{name: "comeback"}
		failing.failDelivery.Store(true)

		d := New(WithInterceptorConfig(failing, TrackerConfig{MaxConsecutiveFailures: 1}))
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "fails")
		flushed(t, d)

		failing.failDelivery.Store(false)
		d.AddInterceptorConfig(failing, TrackerConfig{MaxConsecutiveFailures: 1})

		statuses := d.HealthStatus()
		if len(statuses) != 2 {
			t.Fatalf("Expected 2 tracker entries, got %d", len(statuses))
		}
		if statuses[0].State != StateFailed {
			t.Errorf("Expected original tracker failed, got %s", statuses[0].State)
		}
		if statuses[1].State != StateHealthy {
			t.Errorf("Expected fresh tracker healthy, got %s", statuses[1].State)
		}
	})
}

func TestDispatcherHealthStatus(t *testing.T) {
	t.Run("reports in registration order", func(t *testing.T) {
		d := New(
			WithInterceptor(newCapture("alpha")),
			WithInterceptor(newCapture("beta")),
			WithInterceptor(newCapture("gamma")),
		)
		defer d.Close()

		statuses := d.HealthStatus()
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = s.Name
		}

		expected := []string{"alpha", "beta", "gamma"}
		if !reflect.DeepEqual(names, expected) {
			t.Errorf("Expected %v, got %v", expected, names)
		}
	})

	t.Run("snapshot is stable without activity", func(t *testing.T) {
		failing := &flakyInterceptor{name: "failing"}
		failing.failDelivery.Store(true)
		d := New(WithInterceptorConfig(failing, TrackerConfig{MaxConsecutiveFailures: 1}))
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "fail once")
		flushed(t, d)

		first := d.HealthStatus()
		second := d.HealthStatus()
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Expected identical snapshots, got %v then %v", first, second)
		}
	})
}

func TestDispatcherRecovery(t *testing.T) {
	t.Run("manual health checks recover a failed interceptor", func(t *testing.T) {
		interceptor := &flakyInterceptor{name: "recoverable"}
		interceptor.failDelivery.Store(true)

		d := New(
			WithRecoveryInterval(0),
			WithInterceptorConfig(interceptor, TrackerConfig{
				MaxConsecutiveFailures: 1,
				RecoveryInterval:       20 * time.Millisecond,
			}),
		)
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "fails")
		flushed(t, d)

		if d.HealthStatus()[0].State != StateFailed {
			t.Fatal("Expected interceptor to be failed")
		}

		// Destination comes back; probe after the interval
		interceptor.failDelivery.Store(false)
		time.Sleep(30 * time.Millisecond)
		d.RunHealthChecks(context.Background())

		status := d.HealthStatus()[0]
		if status.State != StateHealthy {
			t.Errorf("Expected healthy after manual check, got %s", status.State)
		}

		// Delivery resumes
		d.Info(core.DomainNetwork, core.ActionSubmit, "works again")
		flushed(t, d)
		if got := interceptor.interceptCount.Load(); got != 2 {
			t.Errorf("Expected 2 deliveries total, got %d", got)
		}
	})

	t.Run("manual health checks respect the backoff window", func(t *testing.T) {
		interceptor := &flakyInterceptor{name: "impatient"}
		interceptor.failDelivery.Store(true)

		d := New(
			WithRecoveryInterval(0),
			WithInterceptorConfig(interceptor, TrackerConfig{
				MaxConsecutiveFailures: 1,
				RecoveryInterval:       time.Minute,
			}),
		)
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "fails")
		flushed(t, d)

		d.RunHealthChecks(context.Background())

		if got := interceptor.healthCount.Load(); got != 0 {
			t.Errorf("Expected no probe inside the backoff window, got %d", got)
		}
	})

	t.Run("periodic loop retires an interceptor that never recovers", func(t *testing.T) {
		interceptor := &flakyInterceptor{name: "hopeless"}
		interceptor.failDelivery.Store(true)
		interceptor.failHealth.Store(true)

		d := New(
			WithRecoveryInterval(10*time.Millisecond),
			WithInterceptorConfig(interceptor, TrackerConfig{
				MaxConsecutiveFailures: 3,
				RecoveryInterval:       10 * time.Millisecond,
				MaxRecoveryAttempts:    2,
			}),
		)
		defer d.Close()

		// Trip the tracker
		for i := 0; i < 3; i++ {
			d.Info(core.DomainNetwork, core.ActionSubmit, "fails")
		}
		flushed(t, d)

		// Wait for the loop to exhaust both recovery attempts
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if d.HealthStatus()[0].PermanentlyFailed {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		status := d.HealthStatus()[0]
		if !status.PermanentlyFailed {
			t.Fatalf("Expected permanent failure, got %+v", status)
		}
		if status.RecoveryAttempts != 2 {
			t.Errorf("Expected 2 recovery attempts, got %d", status.RecoveryAttempts)
		}

		// No further probes once retired
		probes := interceptor.healthCount.Load()
		time.Sleep(50 * time.Millisecond)
		if got := interceptor.healthCount.Load(); got != probes {
			t.Errorf("Expected no probes after permanent failure, got %d more", got-probes)
		}
	})

	t.Run("periodic loop restores delivery end to end", func(t *testing.T) {
		interceptor := &flakyInterceptor{name: "lazarus"}
		interceptor.failDelivery.Store(true)

		d := New(
			WithRecoveryInterval(10*time.Millisecond),
			WithInterceptorConfig(interceptor, TrackerConfig{
				MaxConsecutiveFailures: 1,
				RecoveryInterval:       10 * time.Millisecond,
				MaxRecoveryAttempts:    5,
			}),
		)
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "fails")
		flushed(t, d)

		// Destination comes back; the loop should notice without help
		interceptor.failDelivery.Store(false)

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if d.HealthStatus()[0].State == StateHealthy {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		if got := d.HealthStatus()[0].State; got != StateHealthy {
			t.Fatalf("Expected automatic recovery, got %s", got)
		}
	})
}

func TestDispatcherTimeouts(t *testing.T) {
	t.Run("delivery timeout counts as failure", func(t *testing.T) {
		d := New(
			WithHandleTimeout(20*time.Millisecond),
			WithInterceptorConfig(&blockingInterceptor{}, TrackerConfig{MaxConsecutiveFailures: 1}),
		)
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "hangs")
		flushed(t, d)

		status := d.HealthStatus()[0]
		if status.State != StateFailed {
			t.Errorf("Expected failed after delivery timeout, got %s", status.State)
		}
	})
}

func TestDispatcherClose(t *testing.T) {
	t.Run("waits for in-flight deliveries", func(t *testing.T) {
		capture := newCapture("late-capture")
		d := New(WithInterceptor(capture))

		for i := 0; i < 10; i++ {
			d.Info(core.DomainLifecycle, core.ActionStop, "draining")
		}

		if err := d.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if capture.Count() != 10 {
			t.Errorf("Expected all 10 events delivered before close, got %d", capture.Count())
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		d := New()
		if err := d.Close(); err != nil {
			t.Fatalf("First close failed: %v", err)
		}
		if err := d.Close(); err != nil {
			t.Fatalf("Second close failed: %v", err)
		}
	})

	t.Run("closes interceptors that support it", func(t *testing.T) {
		closable := &closableInterceptor{}
		closable.name = "closable"

		d := New(WithInterceptor(closable))
		if err := d.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if !closable.closed.Load() {
			t.Error("Expected interceptor Close to be called")
		}
	})

	t.Run("events after close are constructed but not delivered", func(t *testing.T) {
		capture := newCapture("closed-capture")
		d := New(WithInterceptor(capture))
		if err := d.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		event := d.Info(core.DomainLifecycle, core.ActionStop, "after close")
		if event == nil {
			t.Fatal("Expected an event after close")
		}
		if capture.Count() != 0 {
			t.Errorf("Expected no deliveries after close, got %d", capture.Count())
		}
	})

	t.Run("registration after close is ignored", func(t *testing.T) {
		d := New()
		if err := d.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		d.AddInterceptor(newCapture("too-late"))
		if len(d.HealthStatus()) != 0 {
			t.Error("Expected registration after close to be ignored")
		}
	})
}

func TestDispatcherFlush(t *testing.T) {
	t.Run("returns promptly when idle", func(t *testing.T) {
		d := New()
		defer d.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := d.Flush(ctx); err != nil {
			t.Errorf("Flush failed: %v", err)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		d := New(
			WithHandleTimeout(500*time.Millisecond),
			WithInterceptor(&blockingInterceptor{}),
		)
		defer d.Close()

		d.Info(core.DomainNetwork, core.ActionSubmit, "hangs")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		if err := d.Flush(ctx); err == nil {
			t.Error("Expected Flush to fail while a delivery hangs")
		}
	})
}

func TestDispatcherBaseFields(t *testing.T) {
	capture := newCapture("capture")
	d := New(
		WithInterceptor(capture),
		WithBaseFields(map[string]string{"host": "web-3", "env": "prod"}),
		WithBaseField("version", "1.4.2"),
		WithMaskKeys("env"),
	)
	defer d.Close()

	stamped := d.Info(core.DomainLifecycle, core.ActionStart, "started")
	overridden := d.Info(core.DomainLifecycle, core.ActionStart, "started elsewhere",
		WithField("host", "web-9"))

	if stamped.Payload["host"] != "web-3" || stamped.Payload["version"] != "1.4.2" {
		t.Errorf("Expected base fields on event, got %v", stamped.Payload)
	}
	if stamped.Payload["env"] != "[redacted]" {
		t.Errorf("Expected base field to pass through masking, got %q", stamped.Payload["env"])
	}
	if overridden.Payload["host"] != "web-9" {
		t.Errorf("Expected per-event field to win, got %q", overridden.Payload["host"])
	}
}

func TestDispatcherConcurrentEmit(t *testing.T) {
	capture := newCapture("concurrent")
	d := New(WithInterceptor(capture))
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				d.Info(core.DomainNetwork, core.ActionSubmit, "concurrent")
			}
		}()
	}
	wg.Wait()
	flushed(t, d)

	if capture.Count() != 200 {
		t.Errorf("Expected 200 events, got %d", capture.Count())
	}
}
