package interceptors

import (
	"context"
	"log/slog"

	"github.com/farolabs/beacon/core"
)

// LevelNotice is the slog level used for notice events, sitting between
// slog.LevelInfo and slog.LevelWarn.
const LevelNotice = slog.Level(2)

// SlogBridge forwards events into a log/slog logger. The bridge does not
// own the logger; its lifecycle stays with the caller.
type SlogBridge struct {
	logger *slog.Logger
}

// NewSlogBridge creates a bridge writing to the given logger. A nil
// logger uses slog.Default.
func NewSlogBridge(logger *slog.Logger) *SlogBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogBridge{logger: logger}
}

// Name identifies the interceptor in health reports.
func (s *SlogBridge) Name() string {
	return "slog"
}

// Intercept logs the event, grouping the payload under a "payload" key so
// entries cannot collide with the fixed attributes.
func (s *SlogBridge) Intercept(ctx context.Context, event *core.Event) error {
	level := severityToSlog(event.Severity)
	if !s.logger.Enabled(ctx, level) {
		return nil
	}

	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs,
		slog.String("event", event.EventID()),
		slog.String("eventId", event.ID.String()),
		slog.String("purpose", event.Purpose.String()),
	)
	if event.Critical {
		attrs = append(attrs, slog.Bool("critical", true))
	}
	if event.CorrelationID != nil {
		attrs = append(attrs, slog.String("correlationId", event.CorrelationID.String()))
	}
	if len(event.Payload) > 0 {
		groupArgs := make([]any, 0, len(event.Payload))
		for k, v := range event.Payload {
			groupArgs = append(groupArgs, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("payload", groupArgs...))
	}

	s.logger.LogAttrs(ctx, level, event.Message, attrs...)
	return nil
}

// HealthCheck always succeeds.
func (s *SlogBridge) HealthCheck(ctx context.Context) error {
	return nil
}

func severityToSlog(s core.Severity) slog.Level {
	switch s {
	case core.SeverityDebug:
		return slog.LevelDebug
	case core.SeverityInfo:
		return slog.LevelInfo
	case core.SeverityNotice:
		return LevelNotice
	case core.SeverityWarning:
		return slog.LevelWarn
	case core.SeverityError:
		return slog.LevelError
	case core.SeverityFault:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}
