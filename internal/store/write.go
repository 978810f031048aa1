package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/wire"
)

// ErrLogNotEmpty is returned by ReplaceState when the message log already
// holds entries that the replaced state would contradict.
var ErrLogNotEmpty = errors.New("message log is not empty")

// MessageRecord is one entry of the message log.
type MessageRecord struct {
	ID      string
	Seq     int64
	Message wire.Message
	Outcome string
	Notices []wire.Notice
}

// Commit atomically appends rec to the message log and applies changes.
//
// Uses ON CONFLICT(id) DO NOTHING on the log: if a message with the same id
// was already committed, nothing is written and inserted is false. The
// caller must then discard its in-memory result and answer from the log.
func (s *Store) Commit(ctx context.Context, rec MessageRecord, changes registry.Changes) (inserted bool, err error) {
	body, err := marshalMessage(rec.Message)
	if err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	notices, err := marshalNotices(rec.Notices)
	if err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages
		(id, seq, action, sender, body, outcome, notices)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		rec.Message.Action,
		rec.Message.From,
		body,
		rec.Outcome,
		notices,
	)
	if err != nil {
		return false, fmt.Errorf("commit: insert message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("commit: rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := applyChanges(ctx, tx, changes); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ReplaceState overwrites all entities and versions with state. It refuses
// to run when the message log is non-empty, since replay would no longer
// reproduce the stored state.
func (s *Store) ReplaceState(ctx context.Context, state registry.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace state: begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return fmt.Errorf("replace state: count messages: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("replace state: %w (%d messages)", ErrLogNotEmpty, count)
	}

	for _, stmt := range []string{`DELETE FROM controllers`, `DELETE FROM entities`, `DELETE FROM versions`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("replace state: %w", err)
		}
	}

	changes := registry.Changes{
		UpsertEntities: state.Entities,
		UpsertVersions: state.Versions,
	}
	if err := applyChanges(ctx, tx, changes); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace state: commit: %w", err)
	}
	return nil
}

func applyChanges(ctx context.Context, tx *sql.Tx, c registry.Changes) error {
	for _, rec := range c.UpsertEntities {
		if err := upsertEntity(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, id := range c.DeleteEntities {
		// Controllers go with the entity via ON DELETE CASCADE.
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = ?`, id); err != nil {
			return fmt.Errorf("delete entity %s: %w", id, err)
		}
	}
	for _, v := range c.UpsertVersions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO versions (version, module_id, source_id, notes)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(version) DO UPDATE SET
				module_id = excluded.module_id,
				source_id = excluded.source_id,
				notes = excluded.notes
		`, v.Version, v.ModuleID, v.SourceID, v.Notes)
		if err != nil {
			return fmt.Errorf("upsert version %s: %w", v.Version, err)
		}
	}
	for _, v := range c.DeleteVersions {
		if _, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE version = ?`, v); err != nil {
			return fmt.Errorf("delete version %s: %w", v, err)
		}
	}
	return nil
}

func upsertEntity(ctx context.Context, tx *sql.Tx, rec registry.EntityRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entities (entity_id, owner, last_sequence, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			owner = excluded.owner,
			last_sequence = excluded.last_sequence,
			registered_at = excluded.registered_at
	`, rec.EntityID, nullString(rec.Owner), nullInt64(rec.LastSequence), rec.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", rec.EntityID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM controllers WHERE entity_id = ?`, rec.EntityID); err != nil {
		return fmt.Errorf("reset controllers of %s: %w", rec.EntityID, err)
	}
	for _, addr := range rec.Controllers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO controllers (entity_id, address) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, rec.EntityID, addr)
		if err != nil {
			return fmt.Errorf("insert controller of %s: %w", rec.EntityID, err)
		}
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
