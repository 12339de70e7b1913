package models

// SessionStatus tracks where a grading session is in its lifecycle.
type SessionStatus string

const (
	// SessionStatusIdle means no grading result is held and no call is in flight.
	SessionStatusIdle SessionStatus = "idle"
	// SessionStatusProcessing means a grading round-trip is in flight.
	SessionStatusProcessing SessionStatus = "processing"
	// SessionStatusSuccess means the session holds a validated grading result.
	SessionStatusSuccess SessionStatus = "success"
	// SessionStatusError means the last grading attempt failed; uploads and
	// ledger are untouched so the teacher can retry.
	SessionStatusError SessionStatus = "error"
	// SessionStatusImproving means an instruction-refinement round-trip is in flight.
	SessionStatusImproving SessionStatus = "improving"
)

// Busy reports whether a model call is currently in flight for this status.
func (s SessionStatus) Busy() bool {
	return s == SessionStatusProcessing || s == SessionStatusImproving
}
