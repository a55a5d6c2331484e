package interceptors

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/farolabs/beacon/core"
)

// ZapBridge forwards events into an existing zap logger so dispatched
// events land in the application's log stream. The bridge does not own
// the logger; its lifecycle stays with the caller.
type ZapBridge struct {
	logger *zap.Logger
}

// NewZapBridge creates a bridge writing to the given logger.
func NewZapBridge(logger *zap.Logger) *ZapBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapBridge{logger: logger}
}

// Name identifies the interceptor in health reports.
func (z *ZapBridge) Name() string {
	return "zap"
}

// Intercept logs the event with its payload as fields.
func (z *ZapBridge) Intercept(ctx context.Context, event *core.Event) error {
	ce := z.logger.Check(severityToZap(event.Severity), event.Message)
	if ce == nil {
		return nil
	}

	fields := make([]zap.Field, 0, len(event.Payload)+5)
	fields = append(fields,
		zap.String("event", event.EventID()),
		zap.String("eventId", event.ID.String()),
		zap.String("purpose", event.Purpose.String()),
	)
	if event.Critical {
		fields = append(fields, zap.Bool("critical", true))
	}
	if event.CorrelationID != nil {
		fields = append(fields, zap.String("correlationId", event.CorrelationID.String()))
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.String(k, v))
	}

	ce.Write(fields...)
	return nil
}

// HealthCheck always succeeds.
func (z *ZapBridge) HealthCheck(ctx context.Context) error {
	return nil
}

// severityToZap maps severities onto zap levels. Fault maps to Error:
// Fatal would exit the process.
func severityToZap(s core.Severity) zapcore.Level {
	switch s {
	case core.SeverityDebug:
		return zapcore.DebugLevel
	case core.SeverityInfo, core.SeverityNotice:
		return zapcore.InfoLevel
	case core.SeverityWarning:
		return zapcore.WarnLevel
	case core.SeverityError, core.SeverityFault:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
