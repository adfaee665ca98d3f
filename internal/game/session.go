// Package game tracks the target number and the targets a player has hit.
package game

import (
	"math/rand"
	"slices"
	"sync"

	"nines/internal/expression"
)

// MaxTarget is the largest target handed out; targets are in [0, MaxTarget].
const MaxTarget = 99

// Session is one player's game state. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	rng      *rand.Rand
	target   int
	achieved map[int]bool
}

// NewSession starts a session with a first random target.
func NewSession(rng *rand.Rand) *Session {
	s := &Session{rng: rng, achieved: make(map[int]bool)}
	s.target = s.rng.Intn(MaxTarget + 1)
	return s
}

// Target returns the current target.
func (s *Session) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// NewTarget draws and returns a new target.
func (s *Session) NewTarget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = s.rng.Intn(MaxTarget + 1)
	return s.target
}

// Record stores target as achieved when res is valid. It reports whether
// the target was newly achieved.
func (s *Session) Record(target int, res expression.Result) bool {
	if !res.Valid || target < 0 || target > MaxTarget {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.achieved[target] {
		return false
	}
	s.achieved[target] = true
	return true
}

// Achieved returns the achieved targets in ascending order.
func (s *Session) Achieved() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.achieved))
	for t := range s.achieved {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
