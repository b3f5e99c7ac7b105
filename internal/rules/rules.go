// Package rules provides the pluggable game rules a session is played under:
// validation of move payloads, the pure round-outcome function and the
// termination predicate over accumulated outcomes.
package rules

import (
	"errors"
	"fmt"

	"github.com/roach88/skirmish/internal/model"
)

// ErrInvalidMove is returned when a payload is not a legal choice.
var ErrInvalidMove = errors.New("invalid move")

// Rules decides round outcomes and termination. Implementations hold no
// mutable state; every method is a pure function of its arguments.
type Rules interface {
	// Set returns the rule set this implementation was built from.
	Set() model.RuleSet

	// Validate checks a move payload for the given round and seat.
	Validate(round, seat int, payload model.Object) error

	// Outcome returns the score delta of each seat for a resolved round.
	Outcome(round int, moves [2]model.Object) [2]int

	// Done reports whether the session is over after its latest outcome,
	// and the winner (empty for a draw).
	Done(s model.GameSession) (bool, model.PlayerID)
}

// Known rule kinds.
const (
	KindDuel  = "duel"
	KindClash = "clash"
)

// Classic bounds: seven units per side, thirty rounds.
const (
	DefaultThreshold = 7
	DefaultMaxRounds = 30
)

// Default returns the duel rule set with the classic bounds.
func Default() model.RuleSet {
	return model.RuleSet{Kind: KindDuel, Threshold: DefaultThreshold, MaxRounds: DefaultMaxRounds}
}

// New builds the Rules for a rule set.
func New(set model.RuleSet) (Rules, error) {
	if set.Threshold < 0 || set.MaxRounds < 0 {
		return nil, fmt.Errorf("rules %q: bounds must not be negative", set.Kind)
	}
	if set.Threshold == 0 && set.MaxRounds == 0 {
		return nil, fmt.Errorf("rules %q: threshold or max_rounds must be set", set.Kind)
	}
	switch set.Kind {
	case KindDuel:
		return Duel{set: set}, nil
	case KindClash:
		return Clash{set: set}, nil
	default:
		return nil, fmt.Errorf("unknown rules kind %q", set.Kind)
	}
}

// MustNew is like New but panics on error.
// Use only in tests or with a rule set known to be valid.
func MustNew(set model.RuleSet) Rules {
	r, err := New(set)
	if err != nil {
		panic(err)
	}
	return r
}

// done is the termination predicate shared by the built-in rules:
// a score reaching the threshold, or the round limit being reached.
// The higher score wins; equal scores are a draw.
func done(set model.RuleSet, s model.GameSession) (bool, model.PlayerID) {
	a, b := s.Participants[0].ID, s.Participants[1].ID
	sa, sb := s.Scores[a], s.Scores[b]

	reached := set.Threshold > 0 && (sa >= set.Threshold || sb >= set.Threshold)
	exhausted := set.MaxRounds > 0 && len(s.History) >= set.MaxRounds
	if !reached && !exhausted {
		return false, ""
	}

	switch {
	case sa > sb:
		return true, a
	case sb > sa:
		return true, b
	default:
		return true, ""
	}
}
