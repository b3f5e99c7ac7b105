package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/skirmish/internal/model"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	testAlice = model.PlayerIdentity{ID: "alice", DisplayName: "Alice"}
	testBob   = model.PlayerIdentity{ID: "bob", DisplayName: "Bob"}
	testCarol = model.PlayerIdentity{ID: "carol", DisplayName: "Carol"}
)

// createTestSession creates a pending duel between a and b created at minute.
func createTestSession(id model.SessionID, a, b model.PlayerIdentity, minute int) model.GameSession {
	created := time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC)
	return model.NewSession(id, a, b, model.RuleSet{Kind: "duel", Threshold: 3, MaxRounds: 30}, created)
}

// createTestEvent creates an accepted join event.
func createTestEvent(id model.SessionID, author model.PlayerID, seq int64) model.MoveEvent {
	return model.MoveEvent{
		ID:        "ev-" + string(author),
		SessionID: id,
		Author:    author,
		Kind:      model.KindJoin,
		Clock:     1,
		Seq:       seq,
	}
}
