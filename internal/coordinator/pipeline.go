package coordinator

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/resolver"
	"github.com/roach88/skirmish/internal/session"
	"github.com/roach88/skirmish/internal/stats"
	"github.com/roach88/skirmish/internal/store"
)

// streamLostError marks a subscription that ended without the session
// closing. The pipeline resubscribes from its cursor.
type streamLostError struct {
	err error
}

func (e *streamLostError) Error() string { return "stream lost: " + e.err.Error() }
func (e *streamLostError) Unwrap() error { return e.err }

// run owns one session: load, subscribe from the cursor, fold accepted
// events, persist, publish. It returns a non-nil error only when the cache
// can no longer be written, which stops every session.
func (c *Coordinator) run(ctx context.Context, f *follower) error {
	s, err := c.load(ctx, f.id)
	if err != nil {
		f.done(err)
		return c.halt(ctx, f.id, "load", err)
	}
	m, err := session.ForSession(s)
	if err != nil {
		f.done(err)
		c.logger.Error("session has unusable rules", "session", f.id, "error", err)
		return nil
	}
	c.update(f, s)
	f.done(nil)
	if s.Status.Terminal() {
		return nil
	}

	res := resolver.New(m, resolver.WithLogger(c.logger))
	for {
		from := s.LastSeq + 1
		stream, err := withRetry(ctx, c, f.id, func() (channel.Stream, error) {
			return c.ch.Subscribe(ctx, f.id, from)
		})
		if err != nil {
			return c.halt(ctx, f.id, "subscribe", err)
		}
		c.logger.Debug("following session", "session", f.id, "from", from)

		s, err = c.consume(ctx, f, stream, res, s)
		stream.Close()

		var lost *streamLostError
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.As(err, &lost):
			c.logger.Warn("stream lost, resubscribing", "session", f.id, "cursor", s.LastSeq, "error", lost.err)
			c.setNotice(f.id, NoticeReconnecting)
			res.Reset()
		default:
			return err
		}
	}
}

// halt ends a session's pipeline without failing the others.
func (c *Coordinator) halt(ctx context.Context, id model.SessionID, op string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	c.logger.Error("session pipeline stopped", "session", id, "op", op, "class", Classify(err), "error", err)
	return nil
}

// load reads the cached session. A missing or corrupt record is rebuilt
// from the channel.
func (c *Coordinator) load(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	s, err := c.cache.GetSession(ctx, id)
	switch {
	case err == nil:
		c.observeClocks(ctx, id)
		return s, nil
	case errors.Is(err, store.ErrNotFound), store.IsCorruption(err):
		c.logger.Warn("resyncing session from channel", "session", id, "error", err)
		return c.resync(ctx, id)
	default:
		return model.GameSession{}, fmt.Errorf("read session %s: %w", id, err)
	}
}

// resync drops everything cached for a session and restarts it from its
// header. The subscription then replays the whole log. The cache is left
// untouched until the header has been fetched, so a session that cannot be
// reached stays open and is resynced on the next start.
func (c *Coordinator) resync(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	remote, err := withRetry(ctx, c, id, func() (model.GameSession, error) {
		return c.ch.Session(ctx, id)
	})
	if err != nil {
		return model.GameSession{}, fmt.Errorf("fetch session %s: %w", id, err)
	}
	if err := c.cache.ResetSession(ctx, id); err != nil {
		return model.GameSession{}, fmt.Errorf("reset session %s: %w", id, err)
	}
	header := remote.Header()
	if err := c.cache.PutSession(ctx, header); err != nil {
		return model.GameSession{}, fmt.Errorf("cache session %s: %w", id, err)
	}
	return header, nil
}

// observeClocks advances the local clock past every cached event the local
// player authored.
func (c *Coordinator) observeClocks(ctx context.Context, id model.SessionID) {
	events, err := c.cache.ReadEvents(ctx, id)
	if err != nil {
		c.logger.Debug("cannot read cached events", "session", id, "error", err)
		return
	}
	for _, ev := range events {
		if ev.Author == c.me.ID {
			c.clock.Observe(ev.Clock)
		}
	}
}

// consume folds events from stream into s until the session is terminal.
func (c *Coordinator) consume(ctx context.Context, f *follower, stream channel.Stream, res *resolver.Resolver, s model.GameSession) (model.GameSession, error) {
	claimed := 0
	for {
		waiting := c.waitingOnOpponent(s) && claimed != s.Round
		nctx, cancel := ctx, context.CancelFunc(func() {})
		if waiting {
			nctx, cancel = context.WithTimeout(ctx, c.idle)
		}
		ev, err := stream.Next(nctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return s, ctx.Err()
			}
			if waiting && errors.Is(err, context.DeadlineExceeded) {
				claimed = s.Round
				c.claimForfeit(ctx, s)
				continue
			}
			return s, &streamLostError{err: err}
		}
		c.setNotice(f.id, "")

		next, result := res.Feed(s, ev)
		if !result.Changed() {
			c.logger.Debug("event not applied", "session", f.id, "seq", ev.Seq, "disposition", result.Disposition)
			continue
		}
		if err := c.cache.Commit(ctx, next, result.Applied); err != nil {
			return s, fmt.Errorf("commit session %s: %w", f.id, err)
		}
		for _, a := range result.Applied {
			if a.Author == c.me.ID {
				c.clock.Observe(a.Clock)
			}
		}
		for _, o := range result.Outcomes {
			c.logger.Info("round resolved", "session", f.id, "round", o.Round)
		}
		s = next

		if s.Status == model.StatusCompleted {
			if err := c.finish(ctx, s); err != nil {
				return s, err
			}
		}
		c.update(f, s)
		if s.Status.Terminal() {
			c.logger.Info("session closed",
				"session", f.id,
				"status", s.Status,
				"winner", s.Winner,
				"rounds", len(s.History),
			)
			return s, nil
		}
	}
}

// waitingOnOpponent reports whether the local player has moved in the
// current round and the opponent has not.
func (c *Coordinator) waitingOnOpponent(s model.GameSession) bool {
	if c.idle <= 0 || s.Status != model.StatusActive {
		return false
	}
	if _, moved := s.Pending[c.me.ID]; !moved {
		return false
	}
	_, moved := s.Pending[s.Opponent(c.me.ID).ID]
	return !moved
}

// claimForfeit appends an abandon on behalf of the idle opponent. The
// session only closes if the channel accepts it; a refusal means the
// opponent's move won the race. While the claim is pending the snapshot
// carries NoticeClaimingForfeit; the next accepted event clears it.
func (c *Coordinator) claimForfeit(ctx context.Context, s model.GameSession) {
	idle := s.Opponent(c.me.ID).ID
	c.logger.Info("opponent idle, claiming forfeit", "session", s.ID, "round", s.Round, "opponent", idle)
	c.setNotice(s.ID, NoticeClaimingForfeit)

	_, err := c.append(ctx, model.MoveEvent{
		SessionID: s.ID,
		Kind:      model.KindAbandon,
		Round:     s.Round,
		Payload:   model.NewObject(model.F(model.ForfeitKey, model.String(idle))),
	})
	if err == nil || ctx.Err() != nil {
		return
	}
	class := Classify(err)
	c.logger.Info("forfeit claim not accepted", "session", s.ID, "class", class, "error", err)
	if class == ClassRejected {
		c.setNotice(s.ID, "")
	}
}

// finish refolds and stores the statistics of both participants.
func (c *Coordinator) finish(ctx context.Context, s model.GameSession) error {
	for _, p := range s.Participants {
		snap, err := c.refold(ctx, p.ID)
		if err != nil {
			return err
		}
		if p.ID == c.me.ID {
			c.setStatistics(snap)
		}
	}
	return nil
}

// refold derives a player's statistics from cached history and stores them.
// Corrupt history records are skipped; they are rebuilt when their session
// is next loaded.
func (c *Coordinator) refold(ctx context.Context, player model.PlayerID) (model.StatisticsSnapshot, error) {
	snap, err := stats.FromHistory(player, c.skipCorrupt(c.cache.ListHistory(ctx, player)))
	if err != nil {
		return model.StatisticsSnapshot{}, fmt.Errorf("fold statistics %s: %w", player, err)
	}
	if err := c.cache.UpsertStatistics(ctx, player, snap); err != nil {
		return model.StatisticsSnapshot{}, fmt.Errorf("store statistics %s: %w", player, err)
	}
	return snap, nil
}

func (c *Coordinator) skipCorrupt(history iter.Seq2[model.GameSession, error]) iter.Seq2[model.GameSession, error] {
	return func(yield func(model.GameSession, error) bool) {
		for s, err := range history {
			if store.IsCorruption(err) {
				c.logger.Warn("skipping corrupt history record", "error", err)
				continue
			}
			if !yield(s, err) {
				return
			}
		}
	}
}
