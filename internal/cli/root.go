package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Database and Hub override the configured cache path and hub URL.
	Database string
	Hub      string

	// Timeout bounds a single intent, including waiting for its echo.
	Timeout time.Duration

	// Config is loaded from the environment before any subcommand runs.
	Config config.Config

	// Logger is installed by the root command; nil discards.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultTimeout bounds intents unless --timeout says otherwise.
const DefaultTimeout = 30 * time.Second

// NewRootCommand creates the root command for the skirmish CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "skirmish",
		Short: "skirmish - two-player sessions that sync",
		Long: `Play two-player turn-based sessions against a shared hub.

Every session is an ordered log of join, move and abandon events held by the
hub. Each device keeps a local cache of the logs it follows and folds them into
the same state, so both players always agree on scores and winners.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the local cache database (default $SKIRMISH_DB)")
	cmd.PersistentFlags().StringVar(&opts.Hub, "hub", "", "websocket URL of the hub (default $SKIRMISH_HUB_URL)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", DefaultTimeout, "how long to wait for an intent to be confirmed")

	// Add subcommands
	cmd.AddCommand(NewHubCommand(opts))
	cmd.AddCommand(NewNewCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewAbandonCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// setup loads the environment configuration and installs the logger.
func (o *RootOptions) setup(stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	level, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// logger returns the installed logger, or one that discards.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o *RootOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o *RootOptions) dbPath() string {
	if o.Database != "" {
		return o.Database
	}
	return o.Config.DBPath
}

func (o *RootOptions) hubURL() string {
	if o.Hub != "" {
		return o.Hub
	}
	return o.Config.HubURL
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
