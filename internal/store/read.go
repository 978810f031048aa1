package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/aclreg/internal/registry"
)

// LoadState reads all entities and versions. Entities are ordered by id and
// controllers by address, matching registry.State's deterministic form.
func (s *Store) LoadState(ctx context.Context) (registry.State, error) {
	entities, err := s.readEntities(ctx)
	if err != nil {
		return registry.State{}, err
	}
	versions, err := s.readVersions(ctx)
	if err != nil {
		return registry.State{}, err
	}
	return registry.State{Entities: entities, Versions: versions}, nil
}

func (s *Store) readEntities(ctx context.Context) ([]registry.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, owner, last_sequence, registered_at
		FROM entities
		ORDER BY entity_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []registry.EntityRecord{}
	index := make(map[string]int)
	for rows.Next() {
		var rec registry.EntityRecord
		var owner sql.NullString
		var lastSeq sql.NullInt64
		if err := rows.Scan(&rec.EntityID, &owner, &lastSeq, &rec.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if owner.Valid {
			rec.Owner = &owner.String
		}
		if lastSeq.Valid {
			rec.LastSequence = &lastSeq.Int64
		}
		rec.Controllers = []string{}
		index[rec.EntityID] = len(entities)
		entities = append(entities, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, address
		FROM controllers
		ORDER BY entity_id COLLATE BINARY ASC, address COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query controllers: %w", err)
	}
	defer crows.Close()

	for crows.Next() {
		var entityID, addr string
		if err := crows.Scan(&entityID, &addr); err != nil {
			return nil, fmt.Errorf("scan controller: %w", err)
		}
		i, ok := index[entityID]
		if !ok {
			return nil, fmt.Errorf("controller %s references unknown entity %s", addr, entityID)
		}
		entities[i].Controllers = append(entities[i].Controllers, addr)
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("iterate controllers: %w", err)
	}

	return entities, nil
}

func (s *Store) readVersions(ctx context.Context) ([]registry.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, module_id, source_id, notes
		FROM versions
		ORDER BY version COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	versions := []registry.VersionRecord{}
	for rows.Next() {
		var v registry.VersionRecord
		if err := rows.Scan(&v.Version, &v.ModuleID, &v.SourceID, &v.Notes); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// LookupMessage returns the logged entry for id. found is false if the
// message was never committed.
func (s *Store) LookupMessage(ctx context.Context, id string) (rec MessageRecord, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, body, outcome, notices
		FROM messages
		WHERE id = ?
	`, id)

	rec, err = scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MessageRecord{}, false, nil
	}
	if err != nil {
		return MessageRecord{}, false, fmt.Errorf("lookup message %s: %w", id, err)
	}
	return rec, true, nil
}

// ReadMessages returns the whole log in commit order.
// Results ordered by seq ASC, id ASC for deterministic replay.
func (s *Store) ReadMessages(ctx context.Context) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, body, outcome, notices
		FROM messages
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	records := []MessageRecord{}
	for rows.Next() {
		rec, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (MessageRecord, error) {
	var rec MessageRecord
	var body, notices string
	if err := row.Scan(&rec.ID, &rec.Seq, &body, &rec.Outcome, &notices); err != nil {
		return MessageRecord{}, err
	}
	msg, err := unmarshalMessage(body)
	if err != nil {
		return MessageRecord{}, err
	}
	rec.Message = msg
	rec.Notices, err = unmarshalNotices(notices)
	if err != nil {
		return MessageRecord{}, err
	}
	return rec, nil
}
