package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/auth"
	"github.com/roach88/skirmish/internal/coordinator"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
)

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	OpponentName string
	RulesFile    string
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new <opponent-id>",
		Short: "Start a session against an opponent",
		Long: `Create a session against the given opponent and join it.

The session is registered on the hub under a fresh six-character room code.
Share the code; the opponent joins with "skirmish join <code>".

Examples:
  skirmish new 0190a3b2-77c1-7cc4-9d0e-5b1f2c3d4e5f
  skirmish new bob --opponent-name Bob --rules ./short.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OpponentName, "opponent-name", "", "display name of the opponent")
	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "CUE rule file for this session (default $SKIRMISH_RULES or duel)")

	return cmd
}

func runNew(opts *NewOptions, opponentID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	opponent := model.PlayerIdentity{
		ID:          model.PlayerID(strings.TrimSpace(opponentID)),
		DisplayName: auth.NormalizeName(opts.OpponentName),
	}
	if opponent.ID == "" {
		return NewExitError(ExitCommandError, "opponent id is empty")
	}

	var extra []coordinator.Option
	if opts.RulesFile != "" {
		set, err := rules.Load(opts.RulesFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid rules file", err)
		}
		extra = append(extra, coordinator.WithRules(set))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout())
	defer cancel()

	p, err := startPlayer(ctx, opts.RootOptions, extra...)
	if err != nil {
		return err
	}
	defer p.Close()

	id, err := p.coord.Create(ctx, opponent)
	if err != nil {
		return intentFailure(formatter, "new", err)
	}
	s, err := p.coord.Await(ctx, id, func(s model.GameSession) bool { return s.HasJoined(p.me.ID) })
	if err != nil {
		return intentFailure(formatter, "new", err)
	}

	if opts.Format == "json" {
		return formatter.Success(viewSession(s, p.me.ID, ""))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Room code: %s\n", id)
	writeSession(cmd.OutOrStdout(), s, p.me.ID, "")
	return nil
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Join a session by room code",
		Long: `Join a session someone created against you.

The session is cached on this device and followed from then on. Joining a
session twice is harmless.

Exit codes:
  0 - Joined
  1 - Rejected (unknown code, not a participant, session over)
  2 - Command error (hub unreachable, cache unreadable)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(rootOpts, roomCode(args[0]), cmd)
		},
	}
	return cmd
}

func runJoin(opts *RootOptions, id model.SessionID, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout())
	defer cancel()

	p, err := startPlayer(ctx, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.coord.Join(ctx, id); err != nil {
		return intentFailure(formatter, "join", err)
	}
	s, err := p.coord.Await(ctx, id, func(s model.GameSession) bool { return s.HasJoined(p.me.ID) })
	if err != nil {
		return intentFailure(formatter, "join", err)
	}
	return printSession(opts, cmd, p, s)
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <code> <payload-json>",
		Short: "Submit your move for the current round",
		Long: `Submit a move for the current round of a session.

The payload is a JSON object whose shape depends on the rules:
  duel   {"choice": 1..4}
  clash  {"hand": "rock" | "paper" | "scissors"}

The command returns once the move is confirmed by the hub and folded into the
local cache.

Examples:
  skirmish move K7Q2ZD '{"choice": 3}'
  skirmish move K7Q2ZD '{"hand": "paper"}' --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(rootOpts, roomCode(args[0]), args[1], cmd)
		},
	}
	return cmd
}

func runMove(opts *RootOptions, id model.SessionID, payloadJSON string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	payload, err := model.ParseObject([]byte(payloadJSON))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid payload", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout())
	defer cancel()

	p, err := startPlayer(ctx, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	seq, err := p.coord.Submit(ctx, id, payload)
	if err != nil {
		return intentFailure(formatter, "move", err)
	}
	formatter.VerboseLog("move accepted at seq %d", seq)

	s, err := p.coord.Await(ctx, id, func(s model.GameSession) bool { return s.LastSeq >= seq })
	if err != nil {
		return intentFailure(formatter, "move", err)
	}
	return printSession(opts, cmd, p, s)
}

// NewAbandonCommand creates the abandon command.
func NewAbandonCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "abandon <code>",
		Short:         "Leave a session; the opponent wins",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbandon(rootOpts, roomCode(args[0]), cmd)
		},
	}
	return cmd
}

func runAbandon(opts *RootOptions, id model.SessionID, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout())
	defer cancel()

	p, err := startPlayer(ctx, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.coord.Abandon(ctx, id); err != nil {
		return intentFailure(formatter, "abandon", err)
	}
	s, err := p.coord.Await(ctx, id, func(s model.GameSession) bool { return s.Status.Terminal() })
	if err != nil {
		return intentFailure(formatter, "abandon", err)
	}
	return printSession(opts, cmd, p, s)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <code>",
		Short: "Follow a session until it ends",
		Long: `Print the session every time it changes, until it completes or is
abandoned. While you wait on an idle opponent past $SKIRMISH_IDLE_TIMEOUT, the
session is claimed as a forfeit on your behalf.

Interrupt with Ctrl-C to stop watching; the session is unaffected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, roomCode(args[0]), cmd)
		},
	}
	return cmd
}

func runWatch(opts *RootOptions, id model.SessionID, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	p, err := startPlayer(ctx, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	updates := p.coord.Watch(ctx)
	s, err := p.coord.Await(ctx, id, func(model.GameSession) bool { return true })
	if err != nil {
		return intentFailure(formatter, "watch", err)
	}
	snap, _ := p.coord.Snapshot(id)
	if err := emitSnapshot(opts, cmd, p, s, snap.Notice); err != nil {
		return err
	}

	lastSeq, lastNotice := s.LastSeq, snap.Notice
	for !s.Status.Terminal() {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if snap.Session.ID != id {
				continue
			}
			if snap.Session.LastSeq == lastSeq && snap.Notice == lastNotice {
				continue
			}
			s, lastSeq, lastNotice = snap.Session, snap.Session.LastSeq, snap.Notice
			if err := emitSnapshot(opts, cmd, p, s, snap.Notice); err != nil {
				return err
			}
		}
	}
	return nil
}

func emitSnapshot(opts *RootOptions, cmd *cobra.Command, p *player, s model.GameSession, notice string) error {
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(viewSession(s, p.me.ID, notice))
	}
	writeSession(cmd.OutOrStdout(), s, p.me.ID, notice)
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func printSession(opts *RootOptions, cmd *cobra.Command, p *player, s model.GameSession) error {
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(viewSession(s, p.me.ID, ""))
	}
	writeSession(cmd.OutOrStdout(), s, p.me.ID, "")
	return nil
}

// roomCode normalizes a typed room code.
func roomCode(arg string) model.SessionID {
	return model.SessionID(strings.ToUpper(strings.TrimSpace(arg)))
}
