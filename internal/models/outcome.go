package models

// OutcomeKind tags how a single address resolution ended.
type OutcomeKind string

const (
	OutcomeResolved    OutcomeKind = "resolved"
	OutcomeNoMatch     OutcomeKind = "no_match"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome is the result of resolving one address of an AddressBatch.
// Coordinates is set only when Kind is OutcomeResolved.
type Outcome struct {
	Generation  uint64       // Generation of the batch that issued the request.
	Index       int          // Index of the address inside the batch.
	Address     string       // Address as supplied by the caller.
	Kind        OutcomeKind  // Kind of the outcome.
	Coordinates *Coordinates // Coordinates of the first candidate.
	Err         error        // Err is the provider error for failed outcomes.
}

// Resolved reports whether the outcome carries coordinates.
func (o Outcome) Resolved() bool {
	return o.Kind == OutcomeResolved && o.Coordinates != nil
}
