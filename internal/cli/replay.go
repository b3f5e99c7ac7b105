package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/channel/wsock"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/resolver"
	"github.com/roach88/skirmish/internal/session"
	"github.com/roach88/skirmish/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Remote bool // also compare with the hub's copy
}

// ReplayResult holds the outcome of rebuilding one session.
type ReplayResult struct {
	Code          string   `json:"code"`
	Events        int      `json:"events"`
	Rounds        int      `json:"rounds"`
	CachedDigest  string   `json:"cached_digest"`
	ReplayDigest  string   `json:"replay_digest"`
	RemoteDigest  string   `json:"remote_digest,omitempty"`
	Deterministic bool     `json:"deterministic"`
	Problems      []string `json:"problems,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <code>",
		Short: "Rebuild a session from its cached events and verify it",
		Long: `Rebuild a session from the header and events in the local cache and
compare the result with the cached session state.

Events that were dropped as unappliable are not cached, so the comparison
ignores the last sequence number and reports it separately.

Exit codes:
  0 - Replay matches the cache (and the hub, with --remote)
  1 - Replay differs
  2 - Command error (session not cached, hub unreachable, etc.)

Examples:
  skirmish replay K7Q2ZD
  skirmish replay K7Q2ZD --remote --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, roomCode(args[0]), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "also compare with the session held by the hub")

	return cmd
}

func runReplay(opts *ReplayOptions, id model.SessionID, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.dbPath())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	defer st.Close()

	cached, err := st.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session %s is not cached", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	events, err := st.ReadEvents(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result, err := replaySession(cached, events)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay", err)
	}
	formatter.VerboseLog("replayed %d event(s) into %d round(s)", result.Events, result.Rounds)

	if opts.Remote {
		if err := compareRemote(ctx, opts, cached, &result); err != nil {
			return err
		}
	}

	if opts.Format == "json" {
		if result.Deterministic {
			if err := formatter.Success(result); err != nil {
				return err
			}
		} else if err := formatter.Error(ErrCodeMismatch, "replay differs", result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Session %s: %d event(s), %d round(s)\n", result.Code, result.Events, result.Rounds)
		fmt.Fprintf(w, "  cached  %s\n", result.CachedDigest)
		fmt.Fprintf(w, "  replay  %s\n", result.ReplayDigest)
		if result.RemoteDigest != "" {
			fmt.Fprintf(w, "  remote  %s\n", result.RemoteDigest)
		}
		for _, p := range result.Problems {
			fmt.Fprintf(w, "  ✗ %s\n", p)
		}
		if result.Deterministic {
			fmt.Fprintln(w, "✓ Replay matches")
		}
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s differs", id))
	}
	return nil
}

// replaySession rebuilds cached from its header and events twice and
// compares the results with each other and with cached.
func replaySession(cached model.GameSession, events []model.MoveEvent) (ReplayResult, error) {
	m, err := session.ForSession(cached)
	if err != nil {
		return ReplayResult{}, err
	}
	header := cached.Header()

	first, outcomes := resolver.Replay(m, header, events)
	second, _ := resolver.Replay(m, header, events)

	result := ReplayResult{
		Code:          string(cached.ID),
		Events:        len(events),
		Rounds:        len(outcomes),
		Deterministic: true,
	}
	if result.CachedDigest, err = stateDigest(cached); err != nil {
		return ReplayResult{}, err
	}
	if result.ReplayDigest, err = stateDigest(first); err != nil {
		return ReplayResult{}, err
	}
	again, err := stateDigest(second)
	if err != nil {
		return ReplayResult{}, err
	}

	if again != result.ReplayDigest {
		result.problem("two replays of the same events differ")
	}
	if result.ReplayDigest != result.CachedDigest {
		result.problem("replay differs from the cached state")
	}
	if first.LastSeq > cached.LastSeq {
		result.problem(fmt.Sprintf("cached events reach seq %d but the session only seq %d", first.LastSeq, cached.LastSeq))
	}
	return result, nil
}

func compareRemote(ctx context.Context, opts *ReplayOptions, cached model.GameSession, result *ReplayResult) error {
	client := wsock.NewClient(opts.hubURL(), wsock.WithClientLogger(opts.logger()))
	defer client.Close()

	rctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	remote, err := client.Session(rctx, cached.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fetch session from hub", err)
	}
	if result.RemoteDigest, err = stateDigest(remote); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest remote session", err)
	}
	if result.RemoteDigest != result.CachedDigest {
		if remote.LastSeq > cached.LastSeq {
			result.problem(fmt.Sprintf("cache is behind the hub (seq %d of %d)", cached.LastSeq, remote.LastSeq))
		} else {
			result.problem("cached state differs from the hub")
		}
	}
	return nil
}

func (r *ReplayResult) problem(msg string) {
	r.Problems = append(r.Problems, msg)
	r.Deterministic = false
}

// stateDigest digests a session without its log position, which trailing
// dropped events advance without changing state.
func stateDigest(s model.GameSession) (string, error) {
	s.LastSeq = 0
	return model.SessionDigest(s)
}
