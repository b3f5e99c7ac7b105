package rules

import (
	"fmt"

	"github.com/roach88/skirmish/internal/model"
)

// Duel is the attack/defend mini-duel. Seat 0 attacks on odd rounds and
// seat 1 on even rounds. Both sides pick a cell 1-4 as {"choice": n}; when
// the defender picked the attacked cell the attacker scores a hit.
type Duel struct {
	set model.RuleSet
}

// DuelChoices is the number of cells a duel choice ranges over.
const DuelChoices = 4

func (d Duel) Set() model.RuleSet { return d.set }

func (d Duel) Validate(round, seat int, payload model.Object) error {
	n, ok := payload.Int("choice")
	if !ok {
		return fmt.Errorf("%w: duel payload needs an integer \"choice\"", ErrInvalidMove)
	}
	if n < 1 || n > DuelChoices {
		return fmt.Errorf("%w: choice %d out of range 1-%d", ErrInvalidMove, n, DuelChoices)
	}
	return nil
}

// Attacker returns the attacking seat for a round.
func (Duel) Attacker(round int) int {
	return (round - 1) % 2
}

func (d Duel) Outcome(round int, moves [2]model.Object) [2]int {
	atk := d.Attacker(round)
	a, _ := moves[atk].Int("choice")
	b, _ := moves[1-atk].Int("choice")

	var delta [2]int
	if a == b {
		delta[atk] = 1
	}
	return delta
}

func (d Duel) Done(s model.GameSession) (bool, model.PlayerID) {
	return done(d.set, s)
}
