package domain

// Outcome is the result of one fetch pass over a roster.
type Outcome int

const (
	// OutcomeComplete means every station in the roster has an artifact.
	OutcomeComplete Outcome = iota
	// OutcomeBudgetExhausted means the pass stopped at its call budget; another
	// pass is needed for the remaining stations.
	OutcomeBudgetExhausted
	// OutcomeFailed means the failure budget tripped, the pass could not start,
	// or at least one station failed.
	OutcomeFailed
	// OutcomeCancelled means the context was done before the pass finished.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeBudgetExhausted:
		return "budget_exhausted"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
