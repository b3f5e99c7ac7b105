package stats

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
)

var (
	alice = model.PlayerIdentity{ID: "alice"}
	bob   = model.PlayerIdentity{ID: "bob"}
	carol = model.PlayerIdentity{ID: "carol"}
)

// finished builds a completed session at the given hour. rounds lists the
// per-round deltas as [alice-or-a, opponent] pairs.
func finished(id model.SessionID, a, b model.PlayerIdentity, hour int, winner model.PlayerID, rounds ...[2]int) model.GameSession {
	s := model.NewSession(id, a, b, model.RuleSet{Kind: "duel", Threshold: 3}, time.Date(2026, 6, 1, hour, 0, 0, 0, time.UTC))
	s.Status = model.StatusCompleted
	s.Winner = winner
	for i, d := range rounds {
		s.History = append(s.History, model.RoundOutcome{
			Round: i + 1,
			Delta: map[model.PlayerID]int{a.ID: d[0], b.ID: d[1]},
		})
	}
	return s
}

func TestFold(t *testing.T) {
	sessions := []model.GameSession{
		// Deliberately out of chronological order.
		finished("G3", alice, bob, 3, "bob", [2]int{0, 1}, [2]int{0, 1}, [2]int{0, 1}),
		finished("G1", alice, bob, 1, "alice", [2]int{1, 0}, [2]int{1, 0}, [2]int{0, 0}, [2]int{1, 0}),
		finished("G2", bob, alice, 2, "alice", [2]int{0, 1}, [2]int{0, 1}, [2]int{0, 1}),
		finished("G4", alice, carol, 4, "alice", [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 0}),
		finished("G5", carol, alice, 5, "", [2]int{1, 0}, [2]int{0, 1}),
	}

	got := Fold("alice", sessions)

	assert.Equal(t, model.StatisticsSnapshot{
		Player:       "alice",
		Games:        5,
		Wins:         3,
		Losses:       1,
		Draws:        1,
		RoundsPlayed: 17,
		RoundsWon:    10,
		Streak:       0,
		BestStreak:   2,
		FastestWin:   3,
	}, got)
}

func TestFold_IgnoresOpenAndForeignSessions(t *testing.T) {
	open := finished("G1", alice, bob, 1, "alice", [2]int{1, 0})
	open.Status = model.StatusActive
	abandoned := finished("G2", alice, bob, 2, "alice")
	abandoned.Status = model.StatusAbandoned
	foreign := finished("G3", bob, carol, 3, "bob", [2]int{1, 0})

	got := Fold("alice", []model.GameSession{open, abandoned, foreign})
	assert.Equal(t, model.StatisticsSnapshot{Player: "alice"}, got)
}

func TestFold_OrderIndependent(t *testing.T) {
	a := finished("G1", alice, bob, 1, "alice", [2]int{1, 0})
	b := finished("G2", alice, bob, 1, "bob", [2]int{0, 1})
	c := finished("G3", alice, bob, 2, "alice", [2]int{1, 0})

	assert.Equal(t,
		Fold("alice", []model.GameSession{a, b, c}),
		Fold("alice", []model.GameSession{c, b, a}),
	)
	assert.Equal(t, 1, Fold("alice", []model.GameSession{c, b, a}).Streak)
}

func TestFromHistory(t *testing.T) {
	sessions := []model.GameSession{
		finished("G1", alice, bob, 1, "alice", [2]int{1, 0}),
	}
	seq := func(yield func(model.GameSession, error) bool) {
		for _, s := range sessions {
			if !yield(s, nil) {
				return
			}
		}
	}

	got, err := FromHistory("alice", seq)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)

	boom := errors.New("corrupt")
	var failing iter.Seq2[model.GameSession, error] = func(yield func(model.GameSession, error) bool) {
		yield(model.GameSession{}, boom)
	}
	_, err = FromHistory("alice", failing)
	assert.ErrorIs(t, err, boom)
}
