package core

// Purpose declares why an event is recorded.
type Purpose int

const (
	// PurposeDiagnostic marks events recorded for debugging and tracing.
	PurposeDiagnostic Purpose = iota

	// PurposeOperational marks events describing normal operation.
	PurposeOperational

	// PurposeAnalytics marks events recorded for usage analysis.
	PurposeAnalytics
)

// String returns the lowercase name of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeDiagnostic:
		return "diagnostic"
	case PurposeOperational:
		return "operational"
	case PurposeAnalytics:
		return "analytics"
	default:
		return "unknown"
	}
}
