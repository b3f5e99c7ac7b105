package rules

import (
	"fmt"

	"github.com/roach88/skirmish/internal/model"
)

// Clash is a simultaneous hands game: {"hand": "rock"|"paper"|"scissors"}.
// The winning hand scores one; a tie scores nothing.
type Clash struct {
	set model.RuleSet
}

var beats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

func (c Clash) Set() model.RuleSet { return c.set }

func (c Clash) Validate(round, seat int, payload model.Object) error {
	hand, ok := payload.Str("hand")
	if !ok {
		return fmt.Errorf("%w: clash payload needs a string \"hand\"", ErrInvalidMove)
	}
	if _, known := beats[hand]; !known {
		return fmt.Errorf("%w: unknown hand %q", ErrInvalidMove, hand)
	}
	return nil
}

func (c Clash) Outcome(round int, moves [2]model.Object) [2]int {
	a, _ := moves[0].Str("hand")
	b, _ := moves[1].Str("hand")

	var delta [2]int
	switch {
	case beats[a] == b:
		delta[0] = 1
	case beats[b] == a:
		delta[1] = 1
	}
	return delta
}

func (c Clash) Done(s model.GameSession) (bool, model.PlayerID) {
	return done(c.set, s)
}
