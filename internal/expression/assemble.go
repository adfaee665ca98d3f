// Package expression turns classified symbols into an arithmetic string
// and validates it against the game's rules.
package expression

import (
	"cmp"
	"slices"
	"strings"

	"nines/internal/classify"
)

// Order returns a copy of symbols sorted left to right by anchor. Symbols
// with equal anchors keep their input order.
func Order(symbols []classify.Symbol) []classify.Symbol {
	out := slices.Clone(symbols)
	slices.SortStableFunc(out, func(a, b classify.Symbol) int {
		return cmp.Compare(a.AnchorX, b.AnchorX)
	})
	return out
}

// Assemble concatenates the symbols in reading order.
func Assemble(symbols []classify.Symbol) string {
	var sb strings.Builder
	for _, s := range Order(symbols) {
		sb.WriteString(s.Symbol)
	}
	return sb.String()
}

// CountNines counts occurrences of the digit 9.
func CountNines(tokens string) int {
	return strings.Count(tokens, "9")
}
