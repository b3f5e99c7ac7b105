package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/skirmish/internal/model"
)

// GetSession loads the cached view of a session.
// Returns ErrNotFound if the session is not cached and *CorruptionError if
// the record fails validation.
func (s *Store) GetSession(ctx context.Context, id model.SessionID) (model.GameSession, error) {
	var record, digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT record, digest FROM sessions WHERE id = ?
	`, string(id)).Scan(&record, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GameSession{}, ErrNotFound
	}
	if err != nil {
		return model.GameSession{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var sess model.GameSession
	if err := decodeRecord(model.DomainSession, RecordSession, string(id), record, digest, &sess); err != nil {
		return model.GameSession{}, err
	}
	if sess.ID != id {
		return model.GameSession{}, &CorruptionError{Record: RecordSession, Key: string(id), Reason: "id mismatch"}
	}
	return sess, nil
}

type storedRecord struct {
	key    string
	record string
	digest string
}

// ListHistory returns every cached session the player participates in,
// most recently created first. Ties on creation time are ordered by id.
//
// The sequence is finite and restartable: each range re-reads the cache.
// A record that fails validation is yielded as a *CorruptionError and
// iteration continues with the next record.
func (s *Store) ListHistory(ctx context.Context, player model.PlayerID) iter.Seq2[model.GameSession, error] {
	return func(yield func(model.GameSession, error) bool) {
		// Rows are drained before yielding; the single connection must be
		// free while the caller works with each session.
		records, err := s.queryRecords(ctx, `
			SELECT s.id, s.record, s.digest
			FROM sessions s
			JOIN session_players p ON p.session_id = s.id
			WHERE p.player_id = ?
			ORDER BY s.created_at DESC, s.id COLLATE BINARY ASC
		`, string(player))
		if err != nil {
			yield(model.GameSession{}, fmt.Errorf("list history %s: %w", player, err))
			return
		}

		for _, r := range records {
			var sess model.GameSession
			if err := decodeRecord(model.DomainSession, RecordSession, r.key, r.record, r.digest, &sess); err != nil {
				if !yield(model.GameSession{}, err) {
					return
				}
				continue
			}
			if !yield(sess, nil) {
				return
			}
		}
	}
}

// ListOpen returns the ids of cached sessions that are not terminal,
// ordered by id.
func (s *Store) ListOpen(ctx context.Context) ([]model.SessionID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions
		WHERE status NOT IN (?, ?)
		ORDER BY id COLLATE BINARY ASC
	`, string(model.StatusCompleted), string(model.StatusAbandoned))
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	defer rows.Close()

	ids := []model.SessionID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, model.SessionID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// ReadEvents returns the cached accepted events of a session in seq order.
// Returns an empty slice (not nil) when none are cached.
func (s *Store) ReadEvents(ctx context.Context, id model.SessionID) ([]model.MoveEvent, error) {
	records, err := s.queryRecords(ctx, `
		SELECT CAST(seq AS TEXT), record, digest
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", id, err)
	}

	events := make([]model.MoveEvent, 0, len(records))
	for _, r := range records {
		var ev model.MoveEvent
		key := string(id) + "/" + r.key
		if err := decodeRecord(model.DomainEvent, RecordEvent, key, r.record, r.digest, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// GetStatistics loads a player's aggregate record.
// Returns ErrNotFound if none has been stored.
func (s *Store) GetStatistics(ctx context.Context, player model.PlayerID) (model.StatisticsSnapshot, error) {
	var record, digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT record, digest FROM statistics WHERE player_id = ?
	`, string(player)).Scan(&record, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StatisticsSnapshot{}, ErrNotFound
	}
	if err != nil {
		return model.StatisticsSnapshot{}, fmt.Errorf("get statistics %s: %w", player, err)
	}

	var snap model.StatisticsSnapshot
	if err := decodeRecord(model.DomainStatistics, RecordStatistics, string(player), record, digest, &snap); err != nil {
		return model.StatisticsSnapshot{}, err
	}
	return snap, nil
}

// LoadIdentity returns the stored device identity or ErrNotFound.
func (s *Store) LoadIdentity(ctx context.Context) (model.PlayerIdentity, error) {
	var id model.PlayerIdentity
	var playerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT player_id, display_name FROM identity WHERE slot = 1
	`).Scan(&playerID, &id.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerIdentity{}, ErrNotFound
	}
	if err != nil {
		return model.PlayerIdentity{}, fmt.Errorf("load identity: %w", err)
	}
	id.ID = model.PlayerID(playerID)
	return id, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]storedRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storedRecord
	for rows.Next() {
		var r storedRecord
		if err := rows.Scan(&r.key, &r.record, &r.digest); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
