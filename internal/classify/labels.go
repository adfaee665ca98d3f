// Package classify maps normalized glyphs to symbols of the fixed alphabet.
package classify

import (
	"fmt"
	"slices"
	"strings"

	"nines/internal/model"
)

// Labels is the ordered output table of a classifier: index i of the
// model's output vector is the probability of Labels[i].
type Labels []string

// DefaultLabels returns the alphabet in the order the shipped model was
// trained with.
func DefaultLabels() Labels {
	return Labels{"9", "+", "-", "*", "/", "(", ")"}
}

// Validate checks the table against a model output size. Labels must be
// non-empty and unique.
func (l Labels) Validate(outputSize int) error {
	if len(l) == 0 {
		return fmt.Errorf("%w: empty label table", model.ErrLabelMismatch)
	}
	if len(l) != outputSize {
		return fmt.Errorf("%w: %d labels, model has %d outputs", model.ErrLabelMismatch, len(l), outputSize)
	}
	seen := make(map[string]bool, len(l))
	for i, s := range l {
		if s == "" {
			return fmt.Errorf("%w: label %d is empty", model.ErrLabelMismatch, i)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate label %q", model.ErrLabelMismatch, s)
		}
		seen[s] = true
	}
	return nil
}

// Index returns the position of symbol in the table, or -1.
func (l Labels) Index(symbol string) int {
	return slices.Index(l, symbol)
}

// Alphabet returns all labels joined, for use as a character whitelist.
func (l Labels) Alphabet() string {
	return strings.Join(l, "")
}
