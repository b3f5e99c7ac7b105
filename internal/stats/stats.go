// Package stats derives per-player statistics by folding completed sessions.
//
// Statistics are never edited in place. They are recomputed from history,
// so two devices holding the same completed sessions derive the same
// snapshot.
package stats

import (
	"cmp"
	"iter"
	"slices"

	"github.com/roach88/skirmish/internal/model"
)

// Fold aggregates the completed sessions in which player took part.
// Sessions in any other status are ignored. Order of the input does not
// matter: sessions are folded oldest first, ties broken by id.
func Fold(player model.PlayerID, sessions []model.GameSession) model.StatisticsSnapshot {
	done := make([]model.GameSession, 0, len(sessions))
	for _, s := range sessions {
		if s.Status != model.StatusCompleted {
			continue
		}
		if _, ok := s.Seat(player); !ok {
			continue
		}
		done = append(done, s)
	}
	slices.SortFunc(done, func(a, b model.GameSession) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	snap := model.StatisticsSnapshot{Player: player}
	for _, s := range done {
		apply(&snap, player, s)
	}
	return snap
}

func apply(snap *model.StatisticsSnapshot, player model.PlayerID, s model.GameSession) {
	opponent := s.Opponent(player).ID
	rounds := len(s.History)

	snap.Games++
	snap.RoundsPlayed += rounds
	for _, o := range s.History {
		if o.Delta[player] > o.Delta[opponent] {
			snap.RoundsWon++
		}
	}

	switch s.Winner {
	case player:
		snap.Wins++
		snap.Streak++
		snap.BestStreak = max(snap.BestStreak, snap.Streak)
		if snap.FastestWin == 0 || rounds < snap.FastestWin {
			snap.FastestWin = rounds
		}
	case "":
		snap.Draws++
		snap.Streak = 0
	default:
		snap.Losses++
		snap.Streak = 0
	}
}

// FromHistory folds a history sequence such as the store's ListHistory.
// The first error yielded by the sequence is returned.
func FromHistory(player model.PlayerID, history iter.Seq2[model.GameSession, error]) (model.StatisticsSnapshot, error) {
	var sessions []model.GameSession
	for s, err := range history {
		if err != nil {
			return model.StatisticsSnapshot{}, err
		}
		sessions = append(sessions, s)
	}
	return Fold(player, sessions), nil
}
