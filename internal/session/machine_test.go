package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
)

var (
	alice = model.PlayerIdentity{ID: "alice", DisplayName: "Alice"}
	bob   = model.PlayerIdentity{ID: "bob", DisplayName: "Bob"}
)

func newDuel(t *testing.T, threshold int) (*Machine, model.GameSession) {
	t.Helper()
	set := model.RuleSet{Kind: rules.KindDuel, Threshold: threshold, MaxRounds: 30}
	s := model.NewSession("ROOM01", alice, bob, set, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	m, err := ForSession(s)
	require.NoError(t, err)
	return m, s
}

// log builds accepted events with consecutive sequence numbers.
type log struct {
	seq    int64
	events []model.MoveEvent
}

func (l *log) add(author model.PlayerID, kind model.EventKind, round int, payload model.Object) model.MoveEvent {
	l.seq++
	ev := model.MoveEvent{
		ID:        "ev-" + string(rune('a'+l.seq)),
		SessionID: "ROOM01",
		Author:    author,
		Kind:      kind,
		Round:     round,
		Payload:   payload,
		Seq:       l.seq,
	}
	l.events = append(l.events, ev)
	return ev
}

func (l *log) join(author model.PlayerID) model.MoveEvent {
	return l.add(author, model.KindJoin, 0, nil)
}

func (l *log) move(author model.PlayerID, round int, c int64) model.MoveEvent {
	return l.add(author, model.KindMove, round, model.NewObject(model.F("choice", model.Int(c))))
}

func mustApply(t *testing.T, m *Machine, s model.GameSession, ev model.MoveEvent) (model.GameSession, *model.RoundOutcome) {
	t.Helper()
	next, outcome, err := m.Apply(s, ev)
	require.NoError(t, err)
	return next, outcome
}

func TestApply_JoinsActivateSession(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log

	s, _ = mustApply(t, m, s, l.join("alice"))
	assert.Equal(t, model.StatusPending, s.Status)

	s, _ = mustApply(t, m, s, l.join("bob"))
	assert.Equal(t, model.StatusActive, s.Status)
	assert.Equal(t, []model.PlayerID{"alice", "bob"}, s.Joined)
	assert.Equal(t, int64(2), s.LastSeq)
}

func TestApply_JoinRecordsDisplayName(t *testing.T) {
	set := model.RuleSet{Kind: rules.KindDuel, Threshold: 3, MaxRounds: 30}
	header := model.NewSession("ROOM01", alice, model.PlayerIdentity{ID: "bob", DisplayName: "Neighbor"}, set, time.Unix(0, 0))
	m, err := ForSession(header)
	require.NoError(t, err)
	var l log

	s, _ := mustApply(t, m, header, l.join("alice"))
	assert.Equal(t, "Alice", s.Participants[0].DisplayName)

	named, _ := mustApply(t, m, s, l.add("bob", model.KindJoin, 0, model.NewObject(model.F(model.NameKey, model.String("Bob")))))
	assert.Equal(t, "Bob", named.Participants[1].DisplayName)
	assert.Equal(t, "Neighbor", s.Participants[1].DisplayName, "input is not modified")

	replayed := m.Replay(header, l.events)
	assert.Equal(t, model.MustSessionDigest(named), model.MustSessionDigest(replayed))
}

func TestApply_RoundResolution(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))

	s, outcome := mustApply(t, m, s, l.move("alice", 1, 2))
	assert.Nil(t, outcome)
	assert.Equal(t, 1, s.Round)
	assert.Contains(t, s.Pending, model.PlayerID("alice"))

	s, outcome = mustApply(t, m, s, l.move("bob", 1, 2))
	require.NotNil(t, outcome)
	assert.Equal(t, 1, outcome.Round)
	assert.Equal(t, map[model.PlayerID]int{"alice": 1, "bob": 0}, outcome.Delta)
	assert.Equal(t, 2, s.Round)
	assert.Empty(t, s.Pending)
	assert.Equal(t, 1, s.Scores["alice"])
	assert.Len(t, s.History, 1)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))

	before := model.MustSessionDigest(s)
	_, _ = mustApply(t, m, s, l.move("alice", 1, 1))
	assert.Equal(t, before, model.MustSessionDigest(s))
}

func TestApply_Rejections(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))

	_, _, err := m.Apply(s, l.move("alice", 1, 1))
	assert.ErrorIs(t, err, ErrNotActive)

	s, _ = mustApply(t, m, s, l.join("bob"))
	s, _ = mustApply(t, m, s, l.move("alice", 1, 1))

	tests := []struct {
		name string
		ev   model.MoveEvent
		want error
	}{
		{"duplicate move", l.move("alice", 1, 3), ErrDuplicateMove},
		{"future round", l.move("bob", 2, 3), ErrRoundNotOpen},
		{"stranger", l.move("mallory", 1, 3), ErrNotParticipant},
		{"second join", l.join("bob"), ErrAlreadyJoined},
		{"bad payload", l.move("bob", 1, 9), ErrInvalidMove},
		{"unknown kind", l.add("bob", "cheat", 1, nil), ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, outcome, err := m.Apply(s, tt.ev)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Nil(t, outcome)
			assert.Equal(t, tt.ev.Seq, next.LastSeq, "dropped events still advance LastSeq")

			next.LastSeq = s.LastSeq
			assert.Equal(t, model.MustSessionDigest(s), model.MustSessionDigest(next))
		})
	}

	s, _ = mustApply(t, m, s, l.move("bob", 1, 1))
	_, _, err = m.Apply(s, l.move("bob", 1, 2))
	assert.ErrorIs(t, err, ErrDuplicateMove, "resubmitting a resolved round")

	resolved := s.Clone()
	delete(resolved.History[0].Moves, "bob")
	_, _, err = m.Apply(resolved, l.move("bob", 1, 2))
	assert.ErrorIs(t, err, ErrRoundResolved)

	other := l.move("bob", 2, 2)
	other.SessionID = "ELSEWH"
	_, _, err = m.Apply(s, other)
	assert.ErrorIs(t, err, ErrWrongSession)
}

func TestApply_CompletesExactlyOnce(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))

	// Alice attacks on odd rounds and hits; Bob's attacks on even rounds miss.
	plays := []struct {
		round    int
		a, b     int64
		complete bool
	}{
		{1, 2, 2, false},
		{2, 1, 3, false},
		{3, 4, 4, false},
		{4, 2, 1, false},
		{5, 3, 3, true},
	}
	for _, p := range plays {
		s, _ = mustApply(t, m, s, l.move("alice", p.round, p.a))
		s, _ = mustApply(t, m, s, l.move("bob", p.round, p.b))
		assert.Equal(t, p.complete, s.Status == model.StatusCompleted, "round %d", p.round)
	}

	assert.Equal(t, model.PlayerID("alice"), s.Winner)
	assert.Equal(t, 3, s.Scores["alice"])
	assert.Equal(t, 0, s.Scores["bob"])
	assert.Len(t, s.History, 5)

	_, _, err := m.Apply(s, l.move("alice", 6, 1))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestApply_Abandon(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))
	s, _ = mustApply(t, m, s, l.move("alice", 1, 1))

	s, _ = mustApply(t, m, s, l.add("bob", model.KindAbandon, 1, nil))
	assert.Equal(t, model.StatusAbandoned, s.Status)
	assert.Equal(t, model.PlayerID("bob"), s.AbandonedBy)
	assert.Equal(t, model.PlayerID("alice"), s.Winner)
	assert.Empty(t, s.Pending)

	_, _, err := m.Apply(s, l.add("alice", model.KindAbandon, 1, nil))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestReplay_ReproducesIncrementalState(t *testing.T) {
	m, header := newDuel(t, 3)
	var l log
	l.join("bob")
	l.join("alice")
	l.move("bob", 1, 4)
	l.move("alice", 1, 4)
	l.move("alice", 1, 2) // resolved round, dropped
	l.move("alice", 2, 3)
	l.move("bob", 2, 1)

	s := header
	for _, ev := range l.events {
		s, _, _ = m.Apply(s, ev)
	}

	replayed := m.Replay(header, l.events)
	assert.Equal(t, model.MustSessionDigest(s), model.MustSessionDigest(replayed))
	assert.Equal(t, int64(7), replayed.LastSeq)
	assert.Equal(t, 3, replayed.Round)
}

func forfeit(l *log, claimant, idle model.PlayerID, round int) model.MoveEvent {
	return l.add(claimant, model.KindAbandon, round, model.NewObject(model.F(model.ForfeitKey, model.String(string(idle)))))
}

func TestApply_ForfeitClaim(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))

	_, _, err := m.Apply(s, forfeit(&l, "alice", "bob", 1))
	assert.ErrorIs(t, err, ErrInvalidClaim, "claimant has not moved")

	s, _ = mustApply(t, m, s, l.move("alice", 1, 2))

	_, _, err = m.Apply(s, forfeit(&l, "alice", "alice", 1))
	assert.ErrorIs(t, err, ErrInvalidClaim, "cannot claim against yourself")
	_, _, err = m.Apply(s, forfeit(&l, "bob", "alice", 1))
	assert.ErrorIs(t, err, ErrInvalidClaim, "the waiting side is alice")

	s, _ = mustApply(t, m, s, forfeit(&l, "alice", "bob", 1))
	assert.Equal(t, model.StatusAbandoned, s.Status)
	assert.Equal(t, model.PlayerID("bob"), s.AbandonedBy)
	assert.Equal(t, model.PlayerID("alice"), s.Winner)
}

func TestApply_ForfeitClaimLosesRaceToMove(t *testing.T) {
	m, s := newDuel(t, 3)
	var l log
	s, _ = mustApply(t, m, s, l.join("alice"))
	s, _ = mustApply(t, m, s, l.join("bob"))
	s, _ = mustApply(t, m, s, l.move("alice", 1, 2))
	s, _ = mustApply(t, m, s, l.move("bob", 1, 3))

	_, _, err := m.Apply(s, forfeit(&l, "alice", "bob", 1))
	assert.ErrorIs(t, err, ErrInvalidClaim)
}
