package expression

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// RequiredNines is the number of 9s a valid expression must use.
const RequiredNines = 3

// Validation messages.
const (
	MsgWrongNineCount = "Must use exactly three 9s"
	MsgInvalid        = "Invalid expression"
	MsgCorrect        = "Correct!"
)

// Result is the outcome of checking an expression against a target.
// Value is set whenever the expression evaluated.
type Result struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Value   *float64 `json:"value,omitempty"`
}

// Validate checks tokens against target: exactly three 9s, a well formed
// expression, and a value exactly equal to target. It depends only on
// its inputs.
func Validate(tokens string, target int, ev Evaluator) Result {
	if n := CountNines(tokens); n != RequiredNines {
		return Result{Message: MsgWrongNineCount}
	}

	res := ev.Evaluate(tokens)
	if !res.OK() {
		log.Debug().Err(res.Err).Str("expression", tokens).Msg("Expression: evaluation failed")
		return Result{Message: MsgInvalid}
	}

	value := res.Value
	if value == float64(target) {
		return Result{Valid: true, Message: MsgCorrect, Value: &value}
	}
	return Result{
		Message: fmt.Sprintf("Result: %s, Target: %d", FormatNumber(value), target),
		Value:   &value,
	}
}
