// Package wsock carries the session channel contract over websockets.
//
// A client keeps one RPC connection for create, session and append, and
// opens one streaming connection per subscription. Every message is a JSON
// Frame. An RPC response echoes the request ID. A streaming connection
// starts with a subscribe request, is acknowledged once, and then carries
// event frames until either side closes it.
//
// Transport failures surface as channel.ErrUnavailable so callers retry;
// a reconnecting subscriber resumes from its own cursor.
package wsock

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
)

// Operations.
const (
	opCreate     = "create"
	opSession    = "session"
	opAppend     = "append"
	opSubscribe  = "subscribe"
	opSubscribed = "subscribed"
	opEvent      = "event"
	opResult     = "result"
	opError      = "error"
)

// Error codes carried in error frames.
const (
	codeRejected       = "rejected"
	codeExists         = "exists"
	codeUnknownSession = "unknown_session"
	codeUnavailable    = "unavailable"
	codeInvalid        = "invalid"
)

// Frame is the single wire message type.
type Frame struct {
	Op        string             `json:"op"`
	ID        uint64             `json:"id,omitempty"`
	SessionID model.SessionID    `json:"session_id,omitempty"`
	Session   *model.GameSession `json:"session,omitempty"`
	Event     *model.MoveEvent   `json:"event,omitempty"`
	Seq       int64              `json:"seq,omitempty"`
	From      int64              `json:"from,omitempty"`
	Code      string             `json:"code,omitempty"`
	Reason    channel.Reason     `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// errorFrame encodes err as a response to req.
func errorFrame(req Frame, err error) Frame {
	f := Frame{Op: opError, ID: req.ID, Error: err.Error()}

	var rej *channel.RejectedError
	switch {
	case errors.As(err, &rej):
		f.Code = codeRejected
		f.Reason = rej.Reason
	case errors.Is(err, channel.ErrSessionExists):
		f.Code = codeExists
	case errors.Is(err, channel.ErrUnknownSession):
		f.Code = codeUnknownSession
	case errors.Is(err, channel.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		f.Code = codeUnavailable
	default:
		f.Code = codeInvalid
	}
	return f
}

// decodeError turns an error frame back into the channel error it encodes.
// req supplies the event context of a rejection.
func decodeError(req, resp Frame) error {
	switch resp.Code {
	case codeRejected:
		rej := &channel.RejectedError{Reason: resp.Reason}
		if req.Event != nil {
			rej.Session = req.Event.SessionID
			rej.Round = req.Event.Round
			rej.Author = req.Event.Author
		}
		return rej
	case codeExists:
		return channel.ErrSessionExists
	case codeUnknownSession:
		return channel.ErrUnknownSession
	case codeUnavailable:
		return channel.ErrUnavailable
	case codeInvalid:
		return fmt.Errorf("remote %s: %w (%s)", req.Op, channel.ErrInvalid, resp.Error)
	default:
		return fmt.Errorf("remote %s: %s", req.Op, resp.Error)
	}
}
