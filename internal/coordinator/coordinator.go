package coordinator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
	"github.com/roach88/skirmish/internal/store"
)

// Cache is the local cache store as the coordinator uses it.
// *store.Store implements it.
type Cache interface {
	PutSession(ctx context.Context, s model.GameSession) error
	Commit(ctx context.Context, s model.GameSession, events []model.MoveEvent) error
	GetSession(ctx context.Context, id model.SessionID) (model.GameSession, error)
	ListHistory(ctx context.Context, player model.PlayerID) iter.Seq2[model.GameSession, error]
	ListOpen(ctx context.Context) ([]model.SessionID, error)
	ReadEvents(ctx context.Context, id model.SessionID) ([]model.MoveEvent, error)
	ResetSession(ctx context.Context, id model.SessionID) error
	UpsertStatistics(ctx context.Context, player model.PlayerID, snap model.StatisticsSnapshot) error
	GetStatistics(ctx context.Context, player model.PlayerID) (model.StatisticsSnapshot, error)
}

var _ Cache = (*store.Store)(nil)

// DefaultIdleTimeout is how long the local player waits on an opponent's
// move before claiming a forfeit.
const DefaultIdleTimeout = 5 * time.Minute

// maxCodeAttempts bounds room-code collisions on Create.
const maxCodeAttempts = 8

// Coordinator drives the sessions of the local player: it turns intents into
// appends, follows each session's accepted log and publishes snapshots.
//
// Each followed session has a single owner goroutine that feeds the resolver
// and writes the cache. Intents only append; local state changes arrive
// through the subscription.
type Coordinator struct {
	ch    channel.Channel
	cache Cache
	me    model.PlayerIdentity
	clock *Clock

	logger      *slog.Logger
	idle        time.Duration
	newBackOff  func() backoff.BackOff
	retryBudget time.Duration
	now         func() time.Time
	newCode     func() model.SessionID
	rules       model.RuleSet

	bc        *broadcaster
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	group    *errgroup.Group
	gctx     context.Context
	sessions map[model.SessionID]*follower
	stats    model.StatisticsSnapshot
}

// follower is the coordinator's handle on one followed session.
type follower struct {
	id     model.SessionID
	loaded chan struct{}
	once   sync.Once
	err    error

	// guarded by Coordinator.mu
	state  model.GameSession
	notice string
}

func (f *follower) done(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.loaded)
	})
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithIdleTimeout sets how long the local player waits on the opponent
// before the session is abandoned on the opponent's behalf. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.idle = d
	}
}

// WithBackOff sets the backoff policy for transient channel failures.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Coordinator) {
		c.newBackOff = f
	}
}

// WithRetryBudget bounds how long one operation is retried.
func WithRetryBudget(d time.Duration) Option {
	return func(c *Coordinator) {
		c.retryBudget = d
	}
}

// WithNow sets the time source for session creation.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithRoomCodes sets the room code generator.
func WithRoomCodes(f func() model.SessionID) Option {
	return func(c *Coordinator) {
		c.newCode = f
	}
}

// WithRules sets the rule set for sessions created on this device.
func WithRules(set model.RuleSet) Option {
	return func(c *Coordinator) {
		c.rules = set
	}
}

// New creates a coordinator for the local player me.
func New(ch channel.Channel, cache Cache, me model.PlayerIdentity, opts ...Option) *Coordinator {
	c := &Coordinator{
		ch:          ch,
		cache:       cache,
		me:          me,
		clock:       NewClock(),
		logger:      slog.Default(),
		idle:        DefaultIdleTimeout,
		newBackOff:  defaultBackOff,
		retryBudget: DefaultRetryBudget,
		now:         time.Now,
		newCode:     model.NewRoomCode,
		rules:       rules.Default(),
		bc:          newBroadcaster(),
		ready:       make(chan struct{}),
		sessions:    make(map[model.SessionID]*follower),
		stats:       model.StatisticsSnapshot{Player: me.ID},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me returns the local player.
func (c *Coordinator) Me() model.PlayerIdentity {
	return c.me
}

// Start follows every open cached session and blocks until ctx ends or a
// session pipeline fails fatally. Intents are accepted once Ready is closed.
func (c *Coordinator) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	c.mu.Lock()
	if c.group != nil {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.group = g
	c.gctx = gctx
	c.mu.Unlock()
	defer c.markReady()

	if err := c.loadStatistics(gctx); err != nil {
		return err
	}

	ids, err := c.cache.ListOpen(gctx)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	for _, id := range ids {
		c.follow(id)
	}
	c.logger.Info("coordinator started", "player", c.me.ID, "open_sessions", len(ids))
	c.markReady()

	<-gctx.Done()
	err = g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}

// Ready is closed once Start has begun following cached sessions, or has
// returned without getting that far.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

func (c *Coordinator) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Coordinator) loadStatistics(ctx context.Context) error {
	snap, err := c.cache.GetStatistics(ctx, c.me.ID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		snap = model.StatisticsSnapshot{Player: c.me.ID}
	case store.IsCorruption(err):
		c.logger.Warn("statistics record corrupt, refolding", "player", c.me.ID, "error", err)
		snap, err = c.refold(ctx, c.me.ID)
		if err != nil {
			return fmt.Errorf("refold statistics: %w", err)
		}
	default:
		return fmt.Errorf("load statistics: %w", err)
	}

	c.mu.Lock()
	c.stats = snap
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) started() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group == nil {
		return ErrNotStarted
	}
	return nil
}

// follow starts the pipeline of a session unless one already exists.
func (c *Coordinator) follow(id model.SessionID) (*follower, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return nil, ErrNotStarted
	}
	if f, ok := c.sessions[id]; ok {
		return f, nil
	}
	f := &follower{id: id, loaded: make(chan struct{})}
	c.sessions[id] = f
	c.group.Go(func() error {
		return c.run(c.gctx, f)
	})
	return f, nil
}

// followed waits for a session's pipeline to load and returns its state.
// A finished session cached by an earlier run is returned as cached.
func (c *Coordinator) followed(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	c.mu.Lock()
	f, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		if s, err := c.cache.GetSession(ctx, id); err == nil && s.Status.Terminal() {
			return s, nil
		}
		return model.GameSession{}, ErrNotWatched
	}

	select {
	case <-ctx.Done():
		return model.GameSession{}, ctx.Err()
	case <-f.loaded:
	}
	if f.err != nil {
		return model.GameSession{}, f.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return f.state.Clone(), nil
}

// Create opens a new session against opponent, with the local player in the
// first seat, and joins it. Returns the room code.
func (c *Coordinator) Create(ctx context.Context, opponent model.PlayerIdentity) (model.SessionID, error) {
	if err := c.started(); err != nil {
		return "", err
	}
	if opponent.ID == c.me.ID {
		return "", fmt.Errorf("create: %w", ErrSelfPlay)
	}
	if _, err := rules.New(c.rules); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}

	var s model.GameSession
	for attempt := 1; ; attempt++ {
		s = model.NewSession(c.newCode(), c.me, opponent, c.rules, c.now())
		_, err := withRetry(ctx, c, "", func() (struct{}, error) {
			return struct{}{}, c.ch.Create(ctx, s)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, channel.ErrSessionExists) || attempt == maxCodeAttempts {
			return "", fmt.Errorf("create session: %w", err)
		}
		c.logger.Debug("room code taken, retrying", "code", s.ID)
	}

	if err := c.cache.PutSession(ctx, s); err != nil {
		return "", fmt.Errorf("cache session %s: %w", s.ID, err)
	}
	if _, err := c.follow(s.ID); err != nil {
		return "", err
	}
	if err := c.appendJoin(ctx, s.ID); err != nil {
		return "", err
	}
	c.logger.Info("session created", "session", s.ID, "opponent", opponent.ID, "rules", s.Rules.Kind)
	return s.ID, nil
}

// Join fetches a session by room code, caches it and joins it.
// Joining a session already joined succeeds.
func (c *Coordinator) Join(ctx context.Context, id model.SessionID) error {
	if err := c.started(); err != nil {
		return err
	}
	remote, err := withRetry(ctx, c, id, func() (model.GameSession, error) {
		return c.ch.Session(ctx, id)
	})
	if errors.Is(err, channel.ErrUnknownSession) {
		err = &channel.RejectedError{Reason: channel.ReasonUnknownSession, Session: id, Author: c.me.ID}
	}
	if err != nil {
		return intentError("join", id, err)
	}
	if _, ok := remote.Seat(c.me.ID); !ok {
		return intentError("join", id, &channel.RejectedError{
			Reason:  channel.ReasonNotParticipant,
			Session: id,
			Author:  c.me.ID,
		})
	}

	if err := c.ensureCached(ctx, remote.Header()); err != nil {
		return err
	}
	if _, err := c.follow(id); err != nil {
		return err
	}
	if err := c.appendJoin(ctx, id); err != nil {
		return err
	}
	c.logger.Info("session joined", "session", id)
	return nil
}

// ensureCached writes header unless a valid record of the session exists.
func (c *Coordinator) ensureCached(ctx context.Context, header model.GameSession) error {
	_, err := c.cache.GetSession(ctx, header.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
	case store.IsCorruption(err):
		if err := c.cache.ResetSession(ctx, header.ID); err != nil {
			return fmt.Errorf("reset session %s: %w", header.ID, err)
		}
	default:
		return fmt.Errorf("read session %s: %w", header.ID, err)
	}
	if err := c.cache.PutSession(ctx, header); err != nil {
		return fmt.Errorf("cache session %s: %w", header.ID, err)
	}
	return nil
}

// appendJoin joins id under the local player's own display name.
func (c *Coordinator) appendJoin(ctx context.Context, id model.SessionID) error {
	ev := model.MoveEvent{
		SessionID: id,
		Kind:      model.KindJoin,
	}
	if c.me.DisplayName != "" {
		ev.Payload = model.NewObject(model.F(model.NameKey, model.String(c.me.DisplayName)))
	}
	_, err := c.append(ctx, ev)
	if reason, ok := channel.RejectionReason(err); ok && reason == channel.ReasonAlreadyJoined {
		return nil
	}
	if err != nil {
		return intentError("join", id, err)
	}
	return nil
}

// Submit appends the local player's move for the current round of the
// local snapshot. It returns the accepted sequence number; the session
// itself advances only when the subscription delivers the event.
//
// A refusal is an *IntentError. If ctx ends first the fate of the move is
// indeterminate until the subscription says otherwise.
func (c *Coordinator) Submit(ctx context.Context, id model.SessionID, payload model.Object) (int64, error) {
	s, err := c.followed(ctx, id)
	if err != nil {
		return 0, err
	}
	seq, err := c.append(ctx, model.MoveEvent{
		SessionID: id,
		Kind:      model.KindMove,
		Round:     s.Round,
		Payload:   payload,
	})
	if err != nil {
		return 0, intentError("move", id, err)
	}
	c.logger.Debug("move accepted", "session", id, "round", s.Round, "seq", seq)
	return seq, nil
}

// Abandon appends the local player's abandon event.
func (c *Coordinator) Abandon(ctx context.Context, id model.SessionID) error {
	s, err := c.followed(ctx, id)
	if err != nil {
		return err
	}
	if _, err := c.append(ctx, model.MoveEvent{
		SessionID: id,
		Kind:      model.KindAbandon,
		Round:     s.Round,
	}); err != nil {
		return intentError("abandon", id, err)
	}
	c.logger.Info("session abandoned", "session", id)
	return nil
}

// append stamps ev as authored by the local player and appends it, retrying
// transient failures. The event id is fixed before the first attempt, so a
// retry of an append that did land returns the original sequence number.
func (c *Coordinator) append(ctx context.Context, ev model.MoveEvent) (int64, error) {
	ev.ID = model.NewEventID()
	ev.Author = c.me.ID
	ev.Clock = c.clock.Next()
	return withRetry(ctx, c, ev.SessionID, func() (int64, error) {
		return c.ch.Append(ctx, ev)
	})
}

// Snapshot returns the latest state of a followed session.
func (c *Coordinator) Snapshot(id model.SessionID) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	select {
	case <-f.loaded:
	default:
		return Snapshot{}, false
	}
	if f.err != nil {
		return Snapshot{}, false
	}
	return c.snapshotLocked(f), true
}

func (c *Coordinator) snapshotLocked(f *follower) Snapshot {
	return Snapshot{
		Session:    f.state.Clone(),
		Statistics: c.stats,
		Notice:     f.notice,
	}
}

// Watch streams snapshots until ctx ends. A consumer that falls behind
// receives the latest snapshot of each session, not every intermediate one.
func (c *Coordinator) Watch(ctx context.Context) <-chan Snapshot {
	return c.bc.subscribe(ctx)
}

// Await blocks until the followed session satisfies pred and returns it.
// It returns ErrSessionOver if the session ends without satisfying pred.
func (c *Coordinator) Await(ctx context.Context, id model.SessionID, pred func(model.GameSession) bool) (model.GameSession, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates := c.Watch(wctx)

	s, err := c.followed(ctx, id)
	if err != nil {
		return model.GameSession{}, err
	}
	if pred(s) {
		return s, nil
	}
	if s.Status.Terminal() {
		return s, fmt.Errorf("await %s: %w", id, ErrSessionOver)
	}
	for {
		select {
		case <-ctx.Done():
			return model.GameSession{}, ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return model.GameSession{}, ctx.Err()
			}
			if snap.Session.ID != id {
				continue
			}
			if pred(snap.Session) {
				return snap.Session, nil
			}
			if snap.Session.Status.Terminal() {
				return snap.Session, fmt.Errorf("await %s: %w", id, ErrSessionOver)
			}
		}
	}
}

// Statistics returns the local player's statistics.
func (c *Coordinator) Statistics(ctx context.Context) (model.StatisticsSnapshot, error) {
	snap, err := c.cache.GetStatistics(ctx, c.me.ID)
	if errors.Is(err, store.ErrNotFound) {
		return model.StatisticsSnapshot{Player: c.me.ID}, nil
	}
	if err != nil {
		return model.StatisticsSnapshot{}, err
	}
	return snap, nil
}

// update records the owner's latest state and publishes it.
func (c *Coordinator) update(f *follower, s model.GameSession) {
	c.mu.Lock()
	f.state = s
	snap := c.snapshotLocked(f)
	c.mu.Unlock()
	c.bc.publish(snap)
}

func (c *Coordinator) setNotice(id model.SessionID, notice string) {
	c.mu.Lock()
	f, ok := c.sessions[id]
	if !ok || f.notice == notice {
		c.mu.Unlock()
		return
	}
	f.notice = notice
	var snap Snapshot
	publish := false
	select {
	case <-f.loaded:
		snap, publish = c.snapshotLocked(f), f.err == nil
	default:
	}
	c.mu.Unlock()
	if publish {
		c.bc.publish(snap)
	}
}

func (c *Coordinator) setStatistics(snap model.StatisticsSnapshot) {
	c.mu.Lock()
	c.stats = snap
	c.mu.Unlock()
}
