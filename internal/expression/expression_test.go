package expression

import (
	"math"
	"math/rand"
	"testing"

	"nines/internal/classify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		tokens string
		target int
		want   Result
	}{
		{"9+9+9", 27, Result{Valid: true, Message: "Correct!", Value: ptr(27)}},
		{"9+9", 18, Result{Message: "Must use exactly three 9s"}},
		{"9*9*9", 100, Result{Message: "Result: 729, Target: 100", Value: ptr(729)}},
		{"9+9+9)", 27, Result{Message: "Invalid expression"}},
		{"9+9+)", 27, Result{Message: "Must use exactly three 9s"}},
		{"9+9//9", 18, Result{Message: "Invalid expression"}},
		{"9*9/*9*/", 81, Result{Message: "Invalid expression"}},
		{"9-9+9", 9, Result{Valid: true, Message: "Correct!", Value: ptr(9)}},
		{"", 0, Result{Message: "Must use exactly three 9s"}},
		{"9999", 9, Result{Message: "Must use exactly three 9s"}},
		{"99/9", 11, Result{Valid: true, Message: "Correct!", Value: ptr(11)}},
		{"9/9/9", 0, Result{Message: "Result: 0.1111111111111111, Target: 0", Value: ptr(1.0 / 9)}},
		{"(9+9)/9", 2, Result{Valid: true, Message: "Correct!", Value: ptr(2)}},
		{"9/(9-9)", 1, Result{Message: "Result: Infinity, Target: 1", Value: ptr(math.Inf(1))}},
		{"9(9+9)", 99, Result{Message: "Result: 162, Target: 99", Value: ptr(162)}},
		{"(9)(9)-9", 72, Result{Valid: true, Message: "Correct!", Value: ptr(72)}},
		{"9+*9(", 0, Result{Message: "Invalid expression"}},
		{"((9+9+9)", 27, Result{Message: "Invalid expression"}},
		{"-9-9-9", 27, Result{Message: "Result: -27, Target: 27", Value: ptr(-27)}},
	}

	ev := NewExprEvaluator()
	for _, tt := range tests {
		t.Run(tt.tokens, func(t *testing.T) {
			got := Validate(tt.tokens, tt.target, ev)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	ev := NewExprEvaluator()
	for _, in := range []string{"9+9+9", "9*9*9", "9+9+9)", "9"} {
		first := Validate(in, 27, ev)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Validate(in, 27, ev))
		}
	}
}

type countingEvaluator struct{ calls int }

func (c *countingEvaluator) Evaluate(string) Evaluation {
	c.calls++
	return Evaluation{Value: 0}
}

func TestValidateSkipsEvaluationOnNineCount(t *testing.T) {
	ev := &countingEvaluator{}
	res := Validate("9+9", 18, ev)
	assert.False(t, res.Valid)
	assert.Zero(t, ev.calls)
}

func TestEvaluate(t *testing.T) {
	ev := NewExprEvaluator()

	res := ev.Evaluate("9 * (9 - 9)")
	require.True(t, res.OK())
	assert.Equal(t, 0.0, res.Value)

	for _, bad := range []string{"", "   ", "9+", "()", "9 ** 9", "9 % 9", "len(9)", "9 == 9", "a+9", "9+9//9", "9*9/*9*/", "9/ /9", "9*/9"} {
		res := ev.Evaluate(bad)
		assert.ErrorIs(t, res.Err, ErrMalformed, bad)
	}
}

func TestAdjacentOperators(t *testing.T) {
	for in, want := range map[string]string{"9**9": "**", "9+9//9": "//", "9/*9*/": "/*", "9 * / 9": "*/"} {
		op, ok := adjacentOperators(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, op, in)
	}
	for _, in := range []string{"9*-9", "9/(9)*9", "-9--9", "9 / 9 * 9"} {
		_, ok := adjacentOperators(in)
		assert.False(t, ok, in)
	}
}

func TestImplicitMultiplication(t *testing.T) {
	assert.Equal(t, "9*(9+9)", implicitMultiplication("9(9+9)"))
	assert.Equal(t, "(9)*(9)", implicitMultiplication("(9)(9)"))
	assert.Equal(t, "(9+9)*9", implicitMultiplication("(9+9)9"))
	assert.Equal(t, "9 *(9)", implicitMultiplication("9 (9)"))
	assert.Equal(t, "9+(9)", implicitMultiplication("9+(9)"))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{729, "729"},
		{-27, "-27"},
		{0.5, "0.5"},
		{math.Copysign(0, -1), "0"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.v))
	}
}

func TestAssembleOrdersByAnchor(t *testing.T) {
	symbols := []classify.Symbol{
		{Symbol: "9", AnchorX: 10},
		{Symbol: "+", AnchorX: 40},
		{Symbol: "9", AnchorX: 70},
		{Symbol: "*", AnchorX: 100},
		{Symbol: "9", AnchorX: 130},
	}
	want := "9+9*9"
	assert.Equal(t, want, Assemble(symbols))

	// Any input order yields the same string.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]classify.Symbol(nil), symbols...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Assemble(shuffled))
	}
}

func TestAssembleStableTies(t *testing.T) {
	symbols := []classify.Symbol{
		{Symbol: "(", AnchorX: 5},
		{Symbol: "9", AnchorX: 5},
		{Symbol: "-", AnchorX: 0},
	}
	assert.Equal(t, "-(9", Assemble(symbols))
	assert.Equal(t, "(", symbols[0].Symbol, "input must not be reordered")
	assert.Equal(t, "", Assemble(nil))
}

func TestCountNines(t *testing.T) {
	assert.Equal(t, 0, CountNines(""))
	assert.Equal(t, 3, CountNines("9+9+9"))
	assert.Equal(t, 4, CountNines("99(99)"))
}
