package session

import (
	"fmt"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
)

// Machine applies accepted events to sessions played under one rule set.
// It holds no per-session state and is safe for concurrent use.
type Machine struct {
	rules rules.Rules
}

// New creates a machine for the given rules.
func New(r rules.Rules) *Machine {
	return &Machine{rules: r}
}

// ForSession creates a machine for the rule set recorded in the session.
func ForSession(s model.GameSession) (*Machine, error) {
	r, err := rules.New(s.Rules)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	return New(r), nil
}

// Rules returns the machine's rule set.
func (m *Machine) Rules() rules.Rules {
	return m.rules
}

// Validate reports whether ev could be applied to s, without applying it.
func (m *Machine) Validate(s model.GameSession, ev model.MoveEvent) error {
	if ev.SessionID != s.ID {
		return ErrWrongSession
	}
	if s.Status.Terminal() {
		return ErrSessionClosed
	}
	seat, ok := s.Seat(ev.Author)
	if !ok {
		return ErrNotParticipant
	}

	switch ev.Kind {
	case model.KindJoin:
		if s.HasJoined(ev.Author) {
			return ErrAlreadyJoined
		}
	case model.KindMove:
		if s.Status != model.StatusActive {
			return ErrNotActive
		}
		if ev.Round < s.Round {
			if movedIn(s, ev.Round, ev.Author) {
				return ErrDuplicateMove
			}
			return ErrRoundResolved
		}
		if ev.Round > s.Round {
			return ErrRoundNotOpen
		}
		if _, moved := s.Pending[ev.Author]; moved {
			return ErrDuplicateMove
		}
		if err := m.rules.Validate(ev.Round, seat, ev.Payload); err != nil {
			return err
		}
	case model.KindAbandon:
		if forfeiter, ok := ev.Payload.Str(model.ForfeitKey); ok {
			return validateClaim(s, ev.Author, model.PlayerID(forfeiter))
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
	return nil
}

// validateClaim checks that claimant moved in the current round and is
// still waiting for forfeiter, the other participant.
func validateClaim(s model.GameSession, claimant, forfeiter model.PlayerID) error {
	if forfeiter == claimant || s.Opponent(claimant).ID != forfeiter {
		return fmt.Errorf("%w: %s is not the opponent", ErrInvalidClaim, forfeiter)
	}
	if s.Status != model.StatusActive {
		return ErrNotActive
	}
	if _, moved := s.Pending[claimant]; !moved {
		return fmt.Errorf("%w: claimant has not moved", ErrInvalidClaim)
	}
	if _, moved := s.Pending[forfeiter]; moved {
		return fmt.Errorf("%w: opponent already moved", ErrInvalidClaim)
	}
	return nil
}

// movedIn reports whether author has a resolved move in round.
func movedIn(s model.GameSession, round int, author model.PlayerID) bool {
	for _, o := range s.History {
		if o.Round == round {
			_, ok := o.Moves[author]
			return ok
		}
	}
	return false
}

// Apply folds an accepted event into s and returns the resulting session.
// s itself is never modified. When the event resolves a round the outcome is
// returned as well.
//
// If the event cannot be applied the error says why, and the returned session
// equals s except that LastSeq has moved to the event's sequence number.
func (m *Machine) Apply(s model.GameSession, ev model.MoveEvent) (model.GameSession, *model.RoundOutcome, error) {
	next := s.Clone()
	if ev.Seq > next.LastSeq {
		next.LastSeq = ev.Seq
	}

	if err := m.Validate(s, ev); err != nil {
		return next, nil, err
	}

	switch ev.Kind {
	case model.KindJoin:
		next.Joined = append(next.Joined, ev.Author)
		if name, ok := ev.Payload.Str(model.NameKey); ok && name != "" {
			seat, _ := next.Seat(ev.Author)
			next.Participants[seat].DisplayName = name
		}
		if len(next.Joined) == len(next.Participants) {
			next.Status = model.StatusActive
		}
		return next, nil, nil

	case model.KindAbandon:
		quitter := ev.Author
		if forfeiter, ok := ev.Payload.Str(model.ForfeitKey); ok {
			quitter = model.PlayerID(forfeiter)
		}
		next.Status = model.StatusAbandoned
		next.AbandonedBy = quitter
		next.Winner = next.Opponent(quitter).ID
		next.Pending = map[model.PlayerID]model.Object{}
		return next, nil, nil

	default:
		next.Pending[ev.Author] = ev.Payload.Clone()
		if len(next.Pending) < len(next.Participants) {
			return next, nil, nil
		}
		outcome := m.resolve(&next)
		return next, &outcome, nil
	}
}

// resolve turns the two pending moves into a RoundOutcome, updates the scores,
// advances the round and evaluates the termination predicate.
func (m *Machine) resolve(s *model.GameSession) model.RoundOutcome {
	var moves [2]model.Object
	for i, p := range s.Participants {
		moves[i] = s.Pending[p.ID]
	}
	delta := m.rules.Outcome(s.Round, moves)

	outcome := model.RoundOutcome{
		Round: s.Round,
		Moves: make(map[model.PlayerID]model.Object, len(s.Participants)),
		Delta: make(map[model.PlayerID]int, len(s.Participants)),
	}
	for i, p := range s.Participants {
		outcome.Moves[p.ID] = moves[i]
		outcome.Delta[p.ID] = delta[i]
		s.Scores[p.ID] += delta[i]
	}

	s.History = append(s.History, outcome)
	s.Pending = map[model.PlayerID]model.Object{}
	s.Round++

	if over, winner := m.rules.Done(*s); over {
		s.Status = model.StatusCompleted
		s.Winner = winner
	}
	return outcome.Clone()
}

// Replay folds an accepted log, in order, into a session header. Events that
// cannot be applied are skipped exactly as Apply would skip them.
func (m *Machine) Replay(header model.GameSession, events []model.MoveEvent) model.GameSession {
	s := header
	for _, ev := range events {
		s, _, _ = m.Apply(s, ev)
	}
	return s
}
