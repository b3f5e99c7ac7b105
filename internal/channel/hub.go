package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/session"
)

// Hub is the authoritative in-process channel. It keeps every session's
// accepted log and folds it through the session state machine, so it knows
// the current round and whether the session is closed when deciding an
// append.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	rooms  map[model.SessionID]*room
	closed bool
	logger *slog.Logger

	forfeitWindow time.Duration
	now           func() time.Time
}

type room struct {
	machine *session.Machine
	state   model.GameSession
	log     []model.MoveEvent
	byID    map[string]int64
	subs    map[*hubStream]struct{}

	// quietSince is when the last event was accepted, or the session created.
	quietSince time.Time
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithForfeitWindow makes the hub refuse a forfeit claim with
// ReasonInvalidClaim unless no event has been accepted in the session for at
// least d. Zero accepts any claim the session state allows.
func WithForfeitWindow(d time.Duration) HubOption {
	return func(h *Hub) {
		h.forfeitWindow = d
	}
}

// WithHubClock sets the time source for the forfeit window.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:  make(map[model.SessionID]*room),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ Channel = (*Hub)(nil)

// Create registers the header of s. Any applied state in s is ignored.
func (h *Hub) Create(ctx context.Context, s model.GameSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateHeader(s); err != nil {
		return fmt.Errorf("create session %s: %w", s.ID, err)
	}
	m, err := session.ForSession(s)
	if err != nil {
		return fmt.Errorf("create session %s: %w: %w", s.ID, ErrInvalid, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrUnavailable
	}
	if _, ok := h.rooms[s.ID]; ok {
		return ErrSessionExists
	}
	h.rooms[s.ID] = &room{
		machine:    m,
		state:      s.Header(),
		byID:       make(map[string]int64),
		subs:       make(map[*hubStream]struct{}),
		quietSince: h.now(),
	}
	h.logger.Debug("session created", "session", s.ID, "rules", s.Rules.Kind)
	return nil
}

func validateHeader(s model.GameSession) error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalid)
	}
	a, b := s.Participants[0].ID, s.Participants[1].ID
	if a == "" || b == "" {
		return fmt.Errorf("%w: missing participant", ErrInvalid)
	}
	if a == b {
		return fmt.Errorf("%w: participants must differ", ErrInvalid)
	}
	return nil
}

// Session returns a copy of the hub's current state of a session.
func (h *Hub) Session(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	if err := ctx.Err(); err != nil {
		return model.GameSession{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return model.GameSession{}, ErrUnavailable
	}
	r, ok := h.rooms[id]
	if !ok {
		return model.GameSession{}, ErrUnknownSession
	}
	return r.state.Clone(), nil
}

// Append accepts or rejects ev and fans accepted events out to subscribers.
func (h *Hub) Append(ctx context.Context, ev model.MoveEvent) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrUnavailable
	}
	r, ok := h.rooms[ev.SessionID]
	if !ok {
		return 0, &RejectedError{Reason: ReasonUnknownSession, Session: ev.SessionID, Round: ev.Round, Author: ev.Author}
	}
	if ev.ID != "" {
		if seq, seen := r.byID[ev.ID]; seen {
			return seq, nil
		}
	}

	if err := r.machine.Validate(r.state, ev); err != nil {
		rej := Reject(ev, err)
		h.logger.Debug("append rejected",
			"session", ev.SessionID,
			"author", ev.Author,
			"round", ev.Round,
			"reason", rej.Reason,
		)
		return 0, rej
	}
	if quiet := h.now().Sub(r.quietSince); isClaim(ev) && quiet < h.forfeitWindow {
		h.logger.Debug("forfeit claim too early",
			"session", ev.SessionID,
			"author", ev.Author,
			"quiet", quiet,
			"window", h.forfeitWindow,
		)
		return 0, &RejectedError{Reason: ReasonInvalidClaim, Session: ev.SessionID, Round: ev.Round, Author: ev.Author}
	}

	ev.Seq = int64(len(r.log)) + 1
	next, _, err := r.machine.Apply(r.state, ev)
	if err != nil {
		// Validate passed, so Apply cannot refuse.
		return 0, fmt.Errorf("append %s: %w", ev.SessionID, err)
	}
	r.state = next
	r.log = append(r.log, ev)
	r.quietSince = h.now()
	if ev.ID != "" {
		r.byID[ev.ID] = ev.Seq
	}

	for sub := range r.subs {
		sub.queue.Enqueue(ev)
	}

	h.logger.Debug("append accepted",
		"session", ev.SessionID,
		"seq", ev.Seq,
		"author", ev.Author,
		"kind", ev.Kind,
		"round", ev.Round,
	)
	return ev.Seq, nil
}

// isClaim reports whether ev abandons a session on the opponent's behalf.
func isClaim(ev model.MoveEvent) bool {
	if ev.Kind != model.KindAbandon {
		return false
	}
	_, ok := ev.Payload.Str(model.ForfeitKey)
	return ok
}

// Subscribe opens a stream that first replays accepted events with
// seq >= from and then follows new ones. The stream closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, id model.SessionID, from int64) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrUnavailable
	}
	r, ok := h.rooms[id]
	if !ok {
		return nil, ErrUnknownSession
	}

	sub := &hubStream{hub: h, id: id, queue: newEventQueue()}
	for _, ev := range r.log {
		if ev.Seq >= from {
			sub.queue.Enqueue(ev)
		}
	}
	r.subs[sub] = struct{}{}
	sub.stop = context.AfterFunc(ctx, func() { sub.Close() })
	return sub, nil
}

// Log returns a copy of the accepted events of a session.
func (h *Hub) Log(id model.SessionID) ([]model.MoveEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	out := make([]model.MoveEvent, len(r.log))
	copy(out, r.log)
	return out, nil
}

// Close refuses further calls and closes every open stream.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, r := range h.rooms {
		for sub := range r.subs {
			sub.queue.Close()
		}
		clear(r.subs)
	}
	return nil
}

func (h *Hub) unsubscribe(sub *hubStream) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[sub.id]; ok {
		delete(r.subs, sub)
	}
}

type hubStream struct {
	hub   *Hub
	id    model.SessionID
	queue *eventQueue
	stop  func() bool
	once  sync.Once
}

func (s *hubStream) Next(ctx context.Context) (model.MoveEvent, error) {
	return s.queue.Next(ctx)
}

func (s *hubStream) Close() error {
	s.once.Do(func() {
		// unsubscribe takes the hub lock, which orders this read of stop
		// after Subscribe assigned it.
		s.hub.unsubscribe(s)
		s.queue.Close()
		if s.stop != nil {
			s.stop()
		}
	})
	return nil
}
