package expression

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// ErrMalformed marks an expression the evaluator could not parse or run.
var ErrMalformed = errors.New("malformed expression")

// Evaluation is the outcome of evaluating one expression: a value or a
// failure reason.
type Evaluation struct {
	Value float64
	Err   error
}

// OK reports whether evaluation succeeded.
func (e Evaluation) OK() bool {
	return e.Err == nil
}

// Evaluator evaluates arithmetic strings.
type Evaluator interface {
	Evaluate(expression string) Evaluation
}

// ExprEvaluator evaluates infix arithmetic over decimal numbers with
// + - * / and parentheses. Juxtaposition next to a parenthesis
// multiplies, so 9(9+9) and (9)(9) are accepted.
type ExprEvaluator struct{}

// NewExprEvaluator returns the default evaluator.
func NewExprEvaluator() ExprEvaluator {
	return ExprEvaluator{}
}

// Evaluate compiles and runs the expression. It never panics.
func (ExprEvaluator) Evaluate(expression string) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			ev = Evaluation{Err: fmt.Errorf("%w: %v", ErrMalformed, r)}
		}
	}()

	if strings.TrimSpace(expression) == "" {
		return Evaluation{Err: fmt.Errorf("%w: empty", ErrMalformed)}
	}
	for _, r := range expression {
		if !strings.ContainsRune("0123456789.+-*/() \t", r) {
			return Evaluation{Err: fmt.Errorf("%w: unexpected character %q", ErrMalformed, r)}
		}
	}

	if op, ok := adjacentOperators(expression); ok {
		return Evaluation{Err: fmt.Errorf("%w: unexpected operator %s", ErrMalformed, op)}
	}

	program, err := expr.Compile(implicitMultiplication(expression))
	if err != nil {
		return Evaluation{Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return Evaluation{Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}

	switch v := out.(type) {
	case int:
		return Evaluation{Value: float64(v)}
	case int64:
		return Evaluation{Value: float64(v)}
	case float64:
		return Evaluation{Value: v}
	default:
		return Evaluation{Err: fmt.Errorf("%w: non-numeric result %T", ErrMalformed, out)}
	}
}

// adjacentOperators finds two multiplicative operators in a row. expr
// reads ** as power, // as a line comment and /* as a block comment, none
// of which is arithmetic here.
func adjacentOperators(s string) (string, bool) {
	var prev rune
	for _, r := range s {
		if r == ' ' || r == '\t' {
			continue
		}
		if (prev == '*' || prev == '/') && (r == '*' || r == '/') {
			return string(prev) + string(r), true
		}
		prev = r
	}
	return "", false
}

// implicitMultiplication inserts '*' where a number or closing parenthesis
// is directly followed by an opening parenthesis, or a closing parenthesis
// by a number.
func implicitMultiplication(s string) string {
	var sb strings.Builder
	var prev rune
	for _, r := range s {
		if r == ' ' || r == '\t' {
			sb.WriteRune(r)
			continue
		}
		operand := isDigit(prev) || prev == '.' || prev == ')'
		if (operand && r == '(') || (prev == ')' && (isDigit(r) || r == '.')) {
			sb.WriteByte('*')
		}
		sb.WriteRune(r)
		prev = r
	}
	return sb.String()
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// FormatNumber renders v the way a JavaScript number prints: shortest
// round-trip digits, exponent outside [1e-6, 1e21), and the names
// Infinity, -Infinity and NaN.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	abs := math.Abs(v)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}
