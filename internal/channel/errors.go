package channel

import (
	"errors"
	"fmt"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/session"
)

// Reason says why the channel refused an event.
type Reason string

const (
	// ReasonDuplicateMove: the author already has a move for this round.
	ReasonDuplicateMove Reason = "DUPLICATE_MOVE"
	// ReasonSessionClosed: the session is Completed or Abandoned.
	ReasonSessionClosed Reason = "SESSION_CLOSED"
	// ReasonStaleRound: the round was already resolved.
	ReasonStaleRound Reason = "STALE_ROUND"
	// ReasonRoundNotOpen: the round is ahead of the current round.
	ReasonRoundNotOpen Reason = "ROUND_NOT_OPEN"
	// ReasonNotActive: moves are refused until both participants joined.
	ReasonNotActive Reason = "NOT_ACTIVE"
	// ReasonAlreadyJoined: the author's join was already accepted.
	ReasonAlreadyJoined Reason = "ALREADY_JOINED"
	// ReasonNotParticipant: the author is not seated in the session.
	ReasonNotParticipant Reason = "NOT_PARTICIPANT"
	// ReasonInvalidClaim: a forfeit claim does not hold.
	ReasonInvalidClaim Reason = "INVALID_CLAIM"
	// ReasonInvalidMove: the payload or event kind fails rule validation.
	ReasonInvalidMove Reason = "INVALID_MOVE"
	// ReasonUnknownSession: no session with this id exists.
	ReasonUnknownSession Reason = "UNKNOWN_SESSION"
)

// RejectedError is the expected, routine refusal of an appended event.
// The event was not appended and session state is unchanged.
type RejectedError struct {
	Reason  Reason
	Session model.SessionID
	Round   int
	Author  model.PlayerID
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: append rejected (session=%s, round=%d, author=%s)", e.Reason, e.Session, e.Round, e.Author)
}

// IsRejected reports whether err is or wraps a *RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// RejectionReason extracts the reason from a rejection.
func RejectionReason(err error) (Reason, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// Reject builds the rejection for a state-machine validation error.
func Reject(ev model.MoveEvent, err error) *RejectedError {
	return &RejectedError{
		Reason:  reasonFor(err),
		Session: ev.SessionID,
		Round:   ev.Round,
		Author:  ev.Author,
	}
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		return ReasonSessionClosed
	case errors.Is(err, session.ErrDuplicateMove):
		return ReasonDuplicateMove
	case errors.Is(err, session.ErrRoundResolved):
		return ReasonStaleRound
	case errors.Is(err, session.ErrRoundNotOpen):
		return ReasonRoundNotOpen
	case errors.Is(err, session.ErrNotActive):
		return ReasonNotActive
	case errors.Is(err, session.ErrAlreadyJoined):
		return ReasonAlreadyJoined
	case errors.Is(err, session.ErrNotParticipant):
		return ReasonNotParticipant
	case errors.Is(err, session.ErrInvalidClaim):
		return ReasonInvalidClaim
	case errors.Is(err, session.ErrWrongSession):
		return ReasonUnknownSession
	default:
		return ReasonInvalidMove
	}
}
