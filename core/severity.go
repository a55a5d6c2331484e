package core

// Severity specifies how serious an event is.
//
// Severities are ordered: Debug < Info < Notice < Warning < Error < Fault.
type Severity int

const (
	// SeverityDebug is for verbose diagnostic detail.
	SeverityDebug Severity = iota

	// SeverityInfo is for routine informational events.
	SeverityInfo

	// SeverityNotice is for normal but significant events.
	SeverityNotice

	// SeverityWarning is for conditions that may need attention.
	SeverityWarning

	// SeverityError is for failed operations.
	SeverityError

	// SeverityFault is for unrecoverable faults.
	SeverityFault
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFault:
		return "fault"
	default:
		return "unknown"
	}
}
