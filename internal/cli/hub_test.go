package cli

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/channel/wsock"
	"github.com/roach88/skirmish/internal/config"
	"github.com/roach88/skirmish/internal/model"
	"github.com/roach88/skirmish/internal/rules"
	"github.com/roach88/skirmish/internal/testutil"
)

func TestHubCommand_ServesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(testCtx(t))
	defer cancel()

	listening := make(chan string, 1)
	opts := &HubOptions{
		RootOptions: &RootOptions{
			Format: "text",
			Logger: quietLogger(),
			Config: config.Config{ForfeitWindow: time.Hour},
		},
		Addr:      "127.0.0.1:0",
		Listening: listening,
	}
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runHub(opts, cmd) }()

	var addr string
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("hub exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not start listening")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	client := wsock.NewClient("ws://"+addr+"/ws", wsock.WithClientLogger(quietLogger()))
	s := model.NewSession("HUB001", alicePlayer, bobPlayer, rules.Default(), testutil.Epoch)
	require.NoError(t, client.Create(ctx, s))
	got, err := client.Session(ctx, "HUB001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	// The session has not been quiet for the configured window.
	for i, ev := range []model.MoveEvent{
		{ID: "j1", SessionID: "HUB001", Author: "alice", Kind: model.KindJoin},
		{ID: "j2", SessionID: "HUB001", Author: "bob", Kind: model.KindJoin},
		{ID: "m1", SessionID: "HUB001", Author: "alice", Kind: model.KindMove, Round: 1, Payload: model.NewObject(model.F("choice", model.Int(2)))},
	} {
		seq, err := client.Append(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}
	_, err = client.Append(ctx, model.MoveEvent{
		ID: "c1", SessionID: "HUB001", Author: "alice", Kind: model.KindAbandon, Round: 1,
		Payload: model.NewObject(model.F(model.ForfeitKey, model.String("bob"))),
	})
	reason, ok := channel.RejectionReason(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Equal(t, channel.ReasonInvalidClaim, reason)
	require.NoError(t, client.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("hub did not shut down")
	}
	assert.Contains(t, out.String(), "Hub listening on ws://"+addr+"/ws")
}

func TestHubCommand_ListenError(t *testing.T) {
	opts := &HubOptions{
		RootOptions: &RootOptions{Format: "text", Logger: quietLogger()},
		Addr:        "no-port",
	}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(testCtx(t))

	err := runHub(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
