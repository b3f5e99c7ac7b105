package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/skirmish/internal/auth"
	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/store"
)

var (
	// ErrNotStarted is returned by intents issued before Start.
	ErrNotStarted = errors.New("coordinator not started")

	// ErrNotWatched is returned for a session this device does not follow.
	ErrNotWatched = errors.New("session not followed on this device")

	// ErrSessionOver is returned by Await when the session ends first.
	ErrSessionOver = errors.New("session is over")

	// ErrSelfPlay is returned by Create when the opponent is the local player.
	ErrSelfPlay = errors.New("cannot play against yourself")
)

// IntentError is a refused player intent. Message is fit for display and
// never mentions sequence numbers.
type IntentError struct {
	Op      string // "move", "abandon", "join", "create"
	Session model.SessionID
	Reason  channel.Reason
	Message string
	Err     error
}

func (e *IntentError) Error() string {
	return e.Message
}

func (e *IntentError) Unwrap() error {
	return e.Err
}

var reasonText = map[channel.Reason]string{
	channel.ReasonDuplicateMove:  "you already moved this round",
	channel.ReasonStaleRound:     "round already resolved",
	channel.ReasonSessionClosed:  "game is over",
	channel.ReasonRoundNotOpen:   "round not open yet",
	channel.ReasonNotActive:      "waiting for both players to join",
	channel.ReasonAlreadyJoined:  "already joined",
	channel.ReasonNotParticipant: "you are not a player in this game",
	channel.ReasonInvalidClaim:   "opponent is no longer idle",
	channel.ReasonInvalidMove:    "not a valid move",
	channel.ReasonUnknownSession: "no game with that code",
}

// intentError wraps a rejection for presentation.
func intentError(op string, id model.SessionID, err error) error {
	var rej *channel.RejectedError
	if !errors.As(err, &rej) {
		return err
	}
	text, ok := reasonText[rej.Reason]
	if !ok {
		text = "refused"
	}
	return &IntentError{
		Op:      op,
		Session: id,
		Reason:  rej.Reason,
		Message: fmt.Sprintf("%s rejected: %s", op, text),
		Err:     err,
	}
}

// Class is the error taxonomy the coordinator acts on.
type Class int

const (
	// ClassNone is a nil error.
	ClassNone Class = iota
	// ClassRejected is a routine refusal by the channel; state is unchanged.
	ClassRejected
	// ClassTransient is a retryable failure to reach the channel.
	ClassTransient
	// ClassCorruption is a local cache record that failed validation.
	ClassCorruption
	// ClassFatal is an authentication failure.
	ClassFatal
	// ClassCanceled is the caller's context ending.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRejected:
		return "rejected"
	case ClassTransient:
		return "transient"
	case ClassCorruption:
		return "corruption"
	case ClassFatal:
		return "fatal"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify places err in the error taxonomy. Errors that are not otherwise
// recognized are transient.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	case channel.IsRejected(err),
		errors.Is(err, channel.ErrUnknownSession),
		errors.Is(err, channel.ErrSessionExists),
		errors.Is(err, channel.ErrInvalid),
		errors.Is(err, ErrNotWatched),
		errors.Is(err, ErrSelfPlay),
		errors.Is(err, ErrSessionOver):
		return ClassRejected
	case store.IsCorruption(err):
		return ClassCorruption
	case errors.Is(err, auth.ErrAuthFailed), errors.Is(err, ErrNotStarted):
		return ClassFatal
	default:
		return ClassTransient
	}
}
