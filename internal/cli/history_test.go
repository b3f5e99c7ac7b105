package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
	"github.com/roach88/skirmish/internal/store"
	"github.com/roach88/skirmish/internal/testutil"
)

var (
	alicePlayer = model.PlayerIdentity{ID: "alice", DisplayName: "Alice"}
	bobPlayer   = model.PlayerIdentity{ID: "bob", DisplayName: "Bob"}
)

// finished returns a completed session won by winner after the given
// per-round deltas, alice's first.
func finished(id model.SessionID, created time.Time, winner model.PlayerID, deltas ...[2]int) model.GameSession {
	s := model.NewSession(id, alicePlayer, bobPlayer, rules.Default(), created)
	s.Joined = []model.PlayerID{"alice", "bob"}
	for i, d := range deltas {
		s.History = append(s.History, model.RoundOutcome{
			Round: i + 1,
			Moves: map[model.PlayerID]model.Object{
				"alice": model.NewObject(model.F("hand", model.String("rock"))),
				"bob":   model.NewObject(model.F("hand", model.String("rock"))),
			},
			Delta: map[model.PlayerID]int{"alice": d[0], "bob": d[1]},
		})
		s.Scores["alice"] += d[0]
		s.Scores["bob"] += d[1]
	}
	s.Round = len(deltas) + 1
	s.Status = model.StatusCompleted
	s.Winner = winner
	s.LastSeq = int64(2 + 2*len(deltas))
	return s
}

// seed stores sessions in the cache of opts.
func seed(t *testing.T, opts *RootOptions, sessions ...model.GameSession) {
	t.Helper()
	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()
	for _, s := range sessions {
		require.NoError(t, st.PutSession(context.Background(), s))
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	alice := newDevice(t, "", "alice", "Alice")

	out, err := execute(t, NewHistoryCommand(alice))
	require.NoError(t, err)
	assert.Equal(t, "No finished sessions.\n", out)

	out, err = execute(t, NewHistoryCommand(asJSON(alice)))
	require.NoError(t, err)
	var entries []HistoryEntry
	resp := decodeResponse(t, out, &entries)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, entries)
}

func TestHistoryCommand_ListsFinishedSessions(t *testing.T) {
	alice := newDevice(t, "", "alice", "Alice")
	open := model.NewSession("OPEN01", alicePlayer, bobPlayer, rules.Default(), testutil.Epoch)
	seed(t, alice,
		finished("WON001", testutil.Epoch, "alice", [2]int{1, 0}, [2]int{1, 0}),
		finished("DRAW01", testutil.Epoch.Add(time.Hour), "", [2]int{0, 0}),
		open,
	)

	out, err := execute(t, NewHistoryCommand(asJSON(alice)))
	require.NoError(t, err)
	var entries []HistoryEntry
	decodeResponse(t, out, &entries)
	require.Len(t, entries, 2)

	byCode := map[string]HistoryEntry{}
	for _, e := range entries {
		byCode[e.Code] = e
	}
	assert.Equal(t, "win", byCode["WON001"].Result)
	assert.Equal(t, "2:0", byCode["WON001"].Score)
	assert.Equal(t, 2, byCode["WON001"].Rounds)
	assert.Equal(t, "Bob", byCode["WON001"].Opponent)
	assert.Equal(t, "draw", byCode["DRAW01"].Result)
	assert.NotContains(t, byCode, "OPEN01")

	out, err = execute(t, NewHistoryCommand(alice), "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "RESULT")
	assert.NotContains(t, out, "OPEN01")
}

func TestStatsCommand(t *testing.T) {
	bob := newDevice(t, "", "bob", "Bob")

	t.Run("no games", func(t *testing.T) {
		out, err := execute(t, NewStatsCommand(bob))
		require.NoError(t, err)
		assert.Contains(t, out, "Player:       Bob (bob)")
		assert.Contains(t, out, "Games:        0 (0 won, 0 lost, 0 drawn)")
		assert.NotContains(t, out, "Fastest win")
	})

	t.Run("refold picks up new history", func(t *testing.T) {
		seed(t, bob,
			finished("LOST01", testutil.Epoch, "alice", [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 0}),
			finished("WON002", testutil.Epoch.Add(time.Hour), "bob", [2]int{0, 1}),
		)

		// The empty snapshot folded above is still stored.
		out, err := execute(t, NewStatsCommand(asJSON(bob)))
		require.NoError(t, err)
		var snap model.StatisticsSnapshot
		decodeResponse(t, out, &snap)
		assert.Zero(t, snap.Games)

		out, err = execute(t, NewStatsCommand(asJSON(bob)), "--refold")
		require.NoError(t, err)
		decodeResponse(t, out, &snap)
		assert.Equal(t, model.StatisticsSnapshot{
			Player:       "bob",
			Games:        2,
			Wins:         1,
			Losses:       1,
			RoundsPlayed: 4,
			RoundsWon:    2,
			Streak:       1,
			BestStreak:   1,
			FastestWin:   1,
		}, snap)

		out, err = execute(t, NewStatsCommand(bob))
		require.NoError(t, err)
		assert.Contains(t, out, "Games:        2 (1 won, 1 lost, 0 drawn)")
		assert.Contains(t, out, "Fastest win:  1 rounds")
	})
}
