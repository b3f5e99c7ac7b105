package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/skirmish/internal/model"
)

// PutSession writes the device's view of a session, replacing any previous
// record for the same id.
func (s *Store) PutSession(ctx context.Context, sess model.GameSession) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return putSession(ctx, tx, sess)
	})
	if err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}
	return nil
}

// Commit writes a session record together with the accepted events that
// produced it, in one transaction. Events already stored for the same
// (session, seq) are left unchanged.
func (s *Store) Commit(ctx context.Context, sess model.GameSession, events []model.MoveEvent) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := putSession(ctx, tx, sess); err != nil {
			return err
		}
		for _, ev := range events {
			if err := putEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return nil
}

func putSession(ctx context.Context, tx *sql.Tx, sess model.GameSession) error {
	record, digest, err := encodeRecord(model.DomainSession, sess)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, status, created_at, last_seq, record, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_seq = excluded.last_seq,
			record = excluded.record,
			digest = excluded.digest
	`,
		string(sess.ID),
		string(sess.Status),
		sess.CreatedAt.UnixMilli(),
		sess.LastSeq,
		record,
		digest,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	for seat, p := range sess.Participants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_players (session_id, player_id, seat)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id, player_id) DO NOTHING
		`, string(sess.ID), string(p.ID), seat)
		if err != nil {
			return fmt.Errorf("write session player: %w", err)
		}
	}
	return nil
}

func putEvent(ctx context.Context, tx *sql.Tx, ev model.MoveEvent) error {
	if !ev.Accepted() {
		return fmt.Errorf("write event %s: not accepted", ev.ID)
	}
	record, digest, err := encodeRecord(model.DomainEvent, ev)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, id, record, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, string(ev.SessionID), ev.Seq, ev.ID, record, digest)
	if err != nil {
		return fmt.Errorf("write event %d: %w", ev.Seq, err)
	}
	return nil
}

// ResetSession removes a session record and its cached events. Used before
// rebuilding the session from the remote log.
func (s *Store) ResetSession(ctx context.Context, id model.SessionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("reset session %s: %w", id, err)
	}
	return nil
}

// UpsertStatistics replaces a player's aggregate record.
func (s *Store) UpsertStatistics(ctx context.Context, player model.PlayerID, snap model.StatisticsSnapshot) error {
	snap.Player = player
	record, digest, err := encodeRecord(model.DomainStatistics, snap)
	if err != nil {
		return fmt.Errorf("upsert statistics %s: %w", player, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO statistics (player_id, record, digest)
		VALUES (?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			record = excluded.record,
			digest = excluded.digest
	`, string(player), record, digest)
	if err != nil {
		return fmt.Errorf("upsert statistics %s: %w", player, err)
	}
	return nil
}

// SaveIdentity stores the device identity. A device has at most one.
func (s *Store) SaveIdentity(ctx context.Context, id model.PlayerIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity (slot, player_id, display_name)
		VALUES (1, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			player_id = excluded.player_id,
			display_name = excluded.display_name
	`, string(id.ID), id.DisplayName)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}
