// Package interceptors provides ready-made event destinations for beacon:
// console and in-memory interceptors, a durable on-disk spool, an HTTP
// collector uploader, a Redis Stream publisher, a WebSocket live tail, and
// bridges into zap and slog.
package interceptors

import (
	"sort"
	"strings"
	"time"

	"github.com/farolabs/beacon/core"
)

// severityCode returns the three-letter code used in line output.
func severityCode(s core.Severity) string {
	switch s {
	case core.SeverityDebug:
		return "DBG"
	case core.SeverityInfo:
		return "INF"
	case core.SeverityNotice:
		return "NTC"
	case core.SeverityWarning:
		return "WRN"
	case core.SeverityError:
		return "ERR"
	case core.SeverityFault:
		return "FLT"
	default:
		return "UNK"
	}
}

// wireEvent is the JSON shape of an event on the wire, shared by the
// collector uploader and the WebSocket tail.
type wireEvent struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Severity      string            `json:"severity"`
	Purpose       string            `json:"purpose"`
	Event         string            `json:"event"`
	Message       string            `json:"message"`
	Payload       map[string]string `json:"payload,omitempty"`
	Critical      bool              `json:"critical,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
}

func toWire(e *core.Event) wireEvent {
	w := wireEvent{
		ID:        e.ID.String(),
		Timestamp: e.Timestamp,
		Severity:  e.Severity.String(),
		Purpose:   e.Purpose.String(),
		Event:     e.EventID(),
		Message:   e.Message,
		Payload:   e.Payload,
		Critical:  e.Critical,
	}
	if e.CorrelationID != nil {
		w.CorrelationID = e.CorrelationID.String()
	}
	return w
}

// formatPayload renders payload entries as "{k=v, k2=v2}", sorted for
// consistent output.
func formatPayload(payload map[string]string) string {
	if len(payload) == 0 {
		return ""
	}

	entries := make([]string, 0, len(payload))
	for k, v := range payload {
		entries = append(entries, k+"="+v)
	}
	sort.Strings(entries)

	return "{" + strings.Join(entries, ", ") + "}"
}
