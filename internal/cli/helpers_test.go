package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skirmish/internal/channel"
	"github.com/roach88/skirmish/internal/channel/wsock"
	"github.com/roach88/skirmish/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startHub serves a fresh hub and returns its websocket URL.
func startHub(t *testing.T) string {
	t.Helper()
	hub := channel.NewHub(channel.WithHubLogger(quietLogger()))
	srv := httptest.NewServer(wsock.NewServer(hub, wsock.WithServerLogger(quietLogger())))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { hub.Close() })
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newDevice returns the options of a player with a private cache.
func newDevice(t *testing.T, hubURL, id, name string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:   "text",
		Database: filepath.Join(t.TempDir(), id+".db"),
		Hub:      hubURL,
		Timeout:  10 * time.Second,
		Config:   config.Config{PlayerID: id, PlayerName: name},
		Logger:   quietLogger(),
	}
}

// asJSON returns a copy of opts that prints JSON.
func asJSON(opts *RootOptions) *RootOptions {
	c := *opts
	c.Format = "json"
	return &c
}

// execute runs cmd with args and returns what it printed on stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(testCtx(t))
	return out.String(), err
}

// decodeResponse parses a JSON response, decoding its data into data.
func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
