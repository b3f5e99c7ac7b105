package session

import (
	"errors"

	"github.com/roach88/skirmish/internal/rules"
)

var (
	// ErrSessionClosed means the session is Completed or Abandoned.
	ErrSessionClosed = errors.New("session closed")
	// ErrWrongSession means the event belongs to another session.
	ErrWrongSession = errors.New("event targets another session")
	// ErrNotParticipant means the author is not seated in the session.
	ErrNotParticipant = errors.New("author is not a participant")
	// ErrAlreadyJoined means the author's join was already accepted.
	ErrAlreadyJoined = errors.New("participant already joined")
	// ErrNotActive means a move arrived before both participants joined.
	ErrNotActive = errors.New("session not active")
	// ErrRoundResolved means the move targets a round that is already resolved.
	ErrRoundResolved = errors.New("round already resolved")
	// ErrRoundNotOpen means the move targets a round after the current one.
	ErrRoundNotOpen = errors.New("round not open yet")
	// ErrDuplicateMove means the author already moved in this round.
	ErrDuplicateMove = errors.New("duplicate move")
	// ErrUnknownKind means the event kind is not recognized.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrInvalidClaim means a forfeit claim does not hold: the claimant is
	// not waiting on the named opponent.
	ErrInvalidClaim = errors.New("invalid forfeit claim")
	// ErrInvalidMove means the rules rejected the payload.
	ErrInvalidMove = rules.ErrInvalidMove
)
