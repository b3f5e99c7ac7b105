// Package channel defines the remote session channel: the shared, ordered,
// append-only log of accepted events for each game session.
//
// The channel is the single authority on event order. Append is a
// conditional write keyed by (session, round, author); the channel either
// assigns the next sequence number or rejects the event with a reason.
// Subscribers receive every accepted event at least once, in sequence order,
// starting from a cursor, and may reconnect from any cursor.
//
// Hub is the in-process implementation. The wsock package carries the same
// contract over websockets.
package channel

import (
	"context"
	"errors"

	"github.com/roach88/skirmish/internal/model"
)

// Channel is the remote session channel contract.
type Channel interface {
	// Create registers a new session header. Returns ErrSessionExists if
	// the id is taken.
	Create(ctx context.Context, s model.GameSession) error

	// Session returns the channel's current view of a session, or
	// ErrUnknownSession.
	Session(ctx context.Context, id model.SessionID) (model.GameSession, error)

	// Append submits an event. On acceptance it returns the assigned
	// sequence number. Expected refusals are *RejectedError; any other
	// error is transient and the event's fate is indeterminate.
	//
	// Appending an event whose ID was already accepted returns the
	// original sequence number.
	Append(ctx context.Context, ev model.MoveEvent) (int64, error)

	// Subscribe opens a stream of accepted events with seq >= from.
	Subscribe(ctx context.Context, id model.SessionID, from int64) (Stream, error)
}

// Stream delivers accepted events of one session in sequence order.
type Stream interface {
	// Next blocks for the next event. It returns ctx.Err() when ctx ends,
	// ErrStreamClosed after Close, and a transient error if the
	// underlying connection is lost.
	Next(ctx context.Context) (model.MoveEvent, error)

	// Close releases the stream. Safe to call more than once.
	Close() error
}

var (
	// ErrSessionExists is returned by Create for a duplicate session id.
	ErrSessionExists = errors.New("channel: session already exists")

	// ErrUnknownSession is returned for a session id the channel has never seen.
	ErrUnknownSession = errors.New("channel: unknown session")

	// ErrInvalid reports a malformed request, such as a session header
	// without two distinct participants. Retrying cannot help.
	ErrInvalid = errors.New("channel: invalid request")

	// ErrUnavailable reports that the channel cannot be reached. Callers
	// retry with backoff.
	ErrUnavailable = errors.New("channel: unavailable")

	// ErrStreamClosed is returned by Stream.Next after Close.
	ErrStreamClosed = errors.New("channel: stream closed")
)
