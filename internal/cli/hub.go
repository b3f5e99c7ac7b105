package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/channel/wsock"
)

// HubOptions holds flags for the hub command.
type HubOptions struct {
	*RootOptions
	Addr string

	// Listening, if set, receives the bound address once the hub accepts
	// connections (for testing).
	Listening chan<- string
}

// shutdownGrace bounds how long open connections may take to drain.
const shutdownGrace = 5 * time.Second

// NewHubCommand creates the hub command.
func NewHubCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HubOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Serve the session channel over websocket",
		Long: `Run an in-memory hub that orders session events and fans them out to
subscribed devices. Devices connect to ws://<addr>/ws.

The hub keeps its logs in memory; restarting it forgets every session.
A forfeit claim is refused until the session has been quiet for
$SKIRMISH_FORFEIT_WINDOW.

Example:
  skirmish hub --addr 0.0.0.0:7450`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHub(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $SKIRMISH_ADDR)")

	return cmd
}

func runHub(opts *HubOptions, cmd *cobra.Command) error {
	logger := opts.logger()

	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Addr
	}

	ctx := cmd.Context()

	hub := channel.NewHub(
		channel.WithHubLogger(logger),
		channel.WithForfeitWindow(opts.Config.ForfeitWindow),
	)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", wsock.NewServer(hub, wsock.WithServerLogger(logger)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	bound := ln.Addr().String()
	logger.Info("hub listening", "addr", bound)
	fmt.Fprintf(cmd.OutOrStdout(), "Hub listening on ws://%s/ws\n", bound)
	if opts.Listening != nil {
		opts.Listening <- bound
	}

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "hub stopped", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", "cause", context.Cause(ctx))
	}

	// Closing the hub ends every stream so the websocket handlers return.
	if err := hub.Close(); err != nil {
		logger.Warn("closing hub", "error", err)
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("hub shutdown", "error", err)
	}
	logger.Info("hub stopped")
	return nil
}
