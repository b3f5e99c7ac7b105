package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/skirmish/internal/auth"
	"github.com/roach88/skirmish/internal/channel/wsock"
	"github.com/roach88/skirmish/internal/coordinator"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
	"github.com/roach88/skirmish/internal/store"
)

// player is a signed-in device with a running coordinator.
type player struct {
	me     model.PlayerIdentity
	store  *store.Store
	client *wsock.Client
	coord  *coordinator.Coordinator
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

// openStore opens the local cache and signs the device in.
func openStore(ctx context.Context, opts *RootOptions) (*store.Store, model.PlayerIdentity, error) {
	st, err := store.Open(opts.dbPath())
	if err != nil {
		return nil, model.PlayerIdentity{}, WrapExitError(ExitCommandError, "failed to open cache", err)
	}

	var authn auth.Authenticator
	if opts.Config.PlayerID != "" {
		authn = auth.NewStatic(model.PlayerID(opts.Config.PlayerID), opts.Config.PlayerName)
	} else {
		authn = auth.NewDevice(st, opts.Config.PlayerName)
	}
	me, err := authn.Authenticate(ctx)
	if err != nil {
		st.Close()
		return nil, model.PlayerIdentity{}, WrapExitError(ExitCommandError, "sign-in failed", err)
	}
	return st, me, nil
}

// startPlayer signs in, connects to the hub and starts following the cached
// sessions. The caller must Close the player.
func startPlayer(ctx context.Context, opts *RootOptions, extra ...coordinator.Option) (*player, error) {
	st, me, err := openStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger := opts.logger()

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithIdleTimeout(opts.Config.IdleTimeout),
	}
	if opts.Config.RulesPath != "" {
		set, err := rules.Load(opts.Config.RulesPath)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "invalid rules file", err)
		}
		coordOpts = append(coordOpts, coordinator.WithRules(set))
	}
	coordOpts = append(coordOpts, extra...)

	client := wsock.NewClient(opts.hubURL(), wsock.WithClientLogger(logger))
	coord := coordinator.New(client, st, me, coordOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	p := &player{
		me:     me,
		store:  st,
		client: client,
		coord:  coord,
		logger: logger,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		p.done <- coord.Start(runCtx)
	}()

	select {
	case <-coord.Ready():
		logger.Debug("signed in", "player", me.ID, "hub", opts.hubURL())
		return p, nil
	case err := <-p.done:
		cancel()
		p.closeResources()
		return nil, WrapExitError(ExitCommandError, "failed to start", err)
	case <-ctx.Done():
		p.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start", ctx.Err())
	}
}

// Close stops the coordinator and releases the hub connection and cache.
// It returns the coordinator's exit error, if any.
func (p *player) Close() error {
	p.cancel()
	err := <-p.done
	p.closeResources()
	return err
}

func (p *player) closeResources() {
	if err := p.client.Close(); err != nil {
		p.logger.Debug("closing hub connection", "error", err)
	}
	if err := p.store.Close(); err != nil {
		p.logger.Error("closing cache", "error", err)
	}
}

// intentFailure reports a failed intent and returns the matching exit error.
// Rejections exit with ExitFailure; everything else is a command error.
func intentFailure(f *OutputFormatter, op string, err error) error {
	class := coordinator.Classify(err)

	code, exit := ErrCodeFatal, ExitCommandError
	message := fmt.Sprintf("%s failed", op)
	switch class {
	case coordinator.ClassRejected:
		code, exit = ErrCodeRejected, ExitFailure
		var intentErr *coordinator.IntentError
		switch {
		case errors.As(err, &intentErr):
			message = intentErr.Error()
		case errors.Is(err, coordinator.ErrNotWatched):
			message = fmt.Sprintf("%s: session is not cached on this device, join it first", op)
		default:
			message = fmt.Sprintf("%s rejected", op)
		}
	case coordinator.ClassTransient:
		code = ErrCodeTransient
		message = fmt.Sprintf("%s: hub unavailable", op)
	case coordinator.ClassCanceled:
		code = ErrCodeTransient
		message = fmt.Sprintf("%s: timed out waiting for the hub", op)
	case coordinator.ClassCorruption:
		code = ErrCodeCorruption
		message = fmt.Sprintf("%s: local cache is corrupt", op)
	}

	if f.Format == "json" {
		if encErr := f.Error(code, message, err.Error()); encErr != nil {
			return encErr
		}
	}
	if class == coordinator.ClassRejected {
		return NewExitError(exit, message)
	}
	return WrapExitError(exit, message, err)
}
