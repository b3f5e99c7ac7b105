// Package resolver decides, for each accepted event delivered by the remote
// channel, whether and when it advances local session state.
//
// Delivery is at-least-once and may be reordered in transit, so the resolver
// de-duplicates by sequence number, buffers events that arrive ahead of a gap
// and applies them strictly in sequence order. Acceptance order assigned by the
// channel is authoritative; client clocks are never consulted.
//
// Two devices that feed the same accepted log, in any arrival order, end with
// identical sessions and identical outcome histories.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/session"
)

// Disposition records what happened to one offered event.
type Disposition int

const (
	// Applied means the event was folded into the session.
	Applied Disposition = iota + 1
	// Duplicate means the sequence number was already applied or buffered.
	Duplicate
	// Closed means the session was already terminal.
	Closed
	// Buffered means the event waits for an earlier sequence number.
	Buffered
	// Dropped means the state machine could not apply the event.
	Dropped
)

func (d Disposition) String() string {
	switch d {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Closed:
		return "closed"
	case Buffered:
		return "buffered"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result summarizes one Feed call.
type Result struct {
	// Disposition of the offered event itself.
	Disposition Disposition

	// Applied lists every event consumed in sequence order by this call,
	// including events released from the buffer and events the machine
	// dropped. These are the events to persist alongside the new state.
	Applied []model.MoveEvent

	// Outcomes lists rounds resolved by this call.
	Outcomes []model.RoundOutcome

	// Dropped counts consumed events the machine refused.
	Dropped int
}

// Changed reports whether the session advanced.
func (r Result) Changed() bool {
	return len(r.Applied) > 0
}

// Resolver serializes the accepted events of one session.
// It is not safe for concurrent use; each session has a single owner.
type Resolver struct {
	machine *session.Machine
	pending map[int64]model.MoveEvent
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver applying events through m.
func New(m *session.Machine, opts ...Option) *Resolver {
	r := &Resolver{
		machine: m,
		pending: make(map[int64]model.MoveEvent),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Buffered returns the number of events waiting for a gap to fill.
func (r *Resolver) Buffered() int {
	return len(r.pending)
}

// Reset discards buffered events. Used before resyncing a session from seq 0.
func (r *Resolver) Reset() {
	clear(r.pending)
}

// Feed offers one accepted event and returns the resulting session.
//
//  1. seq <= s.LastSeq: duplicate, discarded.
//  2. s is terminal: discarded.
//  3. seq is not s.LastSeq+1: buffered until the gap is filled.
//  4. otherwise applied, followed by any buffered successors.
func (r *Resolver) Feed(s model.GameSession, ev model.MoveEvent) (model.GameSession, Result) {
	var res Result

	switch {
	case ev.Seq <= s.LastSeq:
		res.Disposition = Duplicate
		return s, res
	case s.Status.Terminal():
		res.Disposition = Closed
		r.Reset()
		return s, res
	case ev.Seq != s.LastSeq+1:
		if _, seen := r.pending[ev.Seq]; seen {
			res.Disposition = Duplicate
		} else {
			r.pending[ev.Seq] = ev
			res.Disposition = Buffered
		}
		return s, res
	}

	res.Disposition = Applied
	next := ev
	for {
		var outcome *model.RoundOutcome
		var err error
		s, outcome, err = r.machine.Apply(s, next)
		res.Applied = append(res.Applied, next)
		if err != nil {
			res.Dropped++
			if next.Seq == ev.Seq {
				res.Disposition = Dropped
			}
			r.logDrop(next, err)
		}
		if outcome != nil {
			res.Outcomes = append(res.Outcomes, *outcome)
		}

		if s.Status.Terminal() {
			r.Reset()
			break
		}
		buffered, ok := r.pending[s.LastSeq+1]
		if !ok {
			break
		}
		delete(r.pending, buffered.Seq)
		next = buffered
	}
	return s, res
}

// FeedAll offers events in the given arrival order.
func (r *Resolver) FeedAll(s model.GameSession, events []model.MoveEvent) (model.GameSession, Result) {
	var total Result
	for _, ev := range events {
		var res Result
		s, res = r.Feed(s, ev)
		total.Applied = append(total.Applied, res.Applied...)
		total.Outcomes = append(total.Outcomes, res.Outcomes...)
		total.Dropped += res.Dropped
		total.Disposition = res.Disposition
	}
	return s, total
}

func (r *Resolver) logDrop(ev model.MoveEvent, err error) {
	level := slog.LevelWarn
	if errors.Is(err, session.ErrSessionClosed) {
		level = slog.LevelDebug
	}
	r.logger.Log(context.Background(), level, "dropping unappliable event",
		"session", ev.SessionID,
		"seq", ev.Seq,
		"author", ev.Author,
		"kind", ev.Kind,
		"round", ev.Round,
		"error", err,
	)
}

// Replay rebuilds a session from its header and a complete accepted log,
// sorting by sequence number and skipping duplicates first.
func Replay(m *session.Machine, header model.GameSession, events []model.MoveEvent) (model.GameSession, []model.RoundOutcome) {
	sorted := make([]model.MoveEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	r := New(m)
	s, res := r.FeedAll(header, sorted)
	return s, res.Outcomes
}
