package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/stats"
	"github.com/roach88/skirmish/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryEntry is one finished session from the local player's view.
type HistoryEntry struct {
	Code     string    `json:"code"`
	Opponent string    `json:"opponent"`
	Result   string    `json:"result"` // "win" | "loss" | "draw"
	Score    string    `json:"score"`  // own:opponent
	Rounds   int       `json:"rounds"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions, most recent first",
		Long: `List the completed and abandoned sessions cached on this device.

Reads the local cache only; the hub is not contacted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of sessions to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, me, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	entries := []HistoryEntry{}
	skipped := 0
	for s, err := range st.ListHistory(ctx, me.ID) {
		if store.IsCorruption(err) {
			opts.logger().Warn("skipping corrupt history record", "error", err)
			skipped++
			continue
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
		if !s.Status.Terminal() {
			continue
		}
		entries = append(entries, historyEntry(s, me.ID))
		if opts.Limit > 0 && len(entries) == opts.Limit {
			break
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(entries)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No finished sessions.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tOPPONENT\tRESULT\tSCORE\tROUNDS\tSTATUS\tDATE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				e.Code, e.Opponent, e.Result, e.Score, e.Rounds, e.Status, e.Created.UTC().Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if skipped > 0 {
		fmt.Fprintf(w, "%d corrupt record(s) skipped\n", skipped)
	}
	return nil
}

func historyEntry(s model.GameSession, me model.PlayerID) HistoryEntry {
	opp := s.Opponent(me)
	result := "draw"
	switch s.Winner {
	case "":
	case me:
		result = "win"
	default:
		result = "loss"
	}
	return HistoryEntry{
		Code:     string(s.ID),
		Opponent: displayName(opp),
		Result:   result,
		Score:    fmt.Sprintf("%d:%d", s.Scores[me], s.Scores[opp.ID]),
		Rounds:   len(s.History),
		Status:   string(s.Status),
		Created:  s.CreatedAt,
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var refold bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show your win/loss record",
		Long: `Show the statistics of the local player over completed sessions.

Statistics are derived from the cached history. --refold recomputes them from
scratch and stores the result.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, refold, cmd)
		},
	}

	cmd.Flags().BoolVar(&refold, "refold", false, "recompute statistics from history")

	return cmd
}

func runStats(opts *RootOptions, refold bool, cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, me, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := loadStatistics(ctx, st, me.ID, refold)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load statistics", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(snap)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Player:       %s (%s)\n", me.DisplayName, me.ID)
	fmt.Fprintf(w, "Games:        %d (%d won, %d lost, %d drawn)\n", snap.Games, snap.Wins, snap.Losses, snap.Draws)
	fmt.Fprintf(w, "Rounds:       %d played, %d won\n", snap.RoundsPlayed, snap.RoundsWon)
	fmt.Fprintf(w, "Streak:       %d (best %d)\n", snap.Streak, snap.BestStreak)
	if snap.FastestWin > 0 {
		fmt.Fprintf(w, "Fastest win:  %d rounds\n", snap.FastestWin)
	}
	return nil
}

// loadStatistics returns the stored snapshot. History is folded again when
// none is stored or the stored one is corrupt, and on request. Corrupt
// history records are left out of the fold.
func loadStatistics(ctx context.Context, st *store.Store, me model.PlayerID, refold bool) (model.StatisticsSnapshot, error) {
	if !refold {
		snap, err := st.GetStatistics(ctx, me)
		switch {
		case err == nil:
			return snap, nil
		case errors.Is(err, store.ErrNotFound), store.IsCorruption(err):
		default:
			return model.StatisticsSnapshot{}, err
		}
	}

	var sessions []model.GameSession
	for s, err := range st.ListHistory(ctx, me) {
		if store.IsCorruption(err) {
			continue
		}
		if err != nil {
			return model.StatisticsSnapshot{}, err
		}
		sessions = append(sessions, s)
	}
	snap := stats.Fold(me, sessions)
	if err := st.UpsertStatistics(ctx, me, snap); err != nil {
		return model.StatisticsSnapshot{}, err
	}
	return snap, nil
}
