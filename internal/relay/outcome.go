package relay

import "errors"

// ErrStepBudgetExceeded classifies an agent run stopped by its internal
// step/iteration budget rather than the wall-clock timeout.
var ErrStepBudgetExceeded = errors.New("agent step budget exceeded")

// Outcome classifies how a dispatch terminated. Every dispatch produces
// exactly one outcome; there is no silent-drop path.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeStepBudget
	OutcomeExecutionError
)

// String returns the log label for an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStepBudget:
		return "step_budget_exceeded"
	case OutcomeExecutionError:
		return "execution_error"
	default:
		return "unknown"
	}
}

// userFacingText maps a failure outcome to the short explanation shown to
// the end user. Full error detail stays in the server logs.
func userFacingText(o Outcome) string {
	switch o {
	case OutcomeTimeout:
		return "Sorry, the query took too long to process. This might be due to LLM service issues. Please try again or ask a simpler question."
	case OutcomeStepBudget:
		return "I'm sorry, but this query is too complex and caused the agent to loop. Please try a simpler query or break it into smaller parts."
	default:
		return "Error processing query. Please try again or rephrase your question."
	}
}
