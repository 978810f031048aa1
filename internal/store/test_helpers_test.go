package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/wire"
)

// createTestStore creates a new temp-dir store for testing.
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

// createTestRecord creates a log record with minimal required fields.
func createTestRecord(id string, seq int64, action string) MessageRecord {
	return MessageRecord{
		ID:  id,
		Seq: seq,
		Message: wire.Message{
			ID:     id,
			Action: action,
			From:   "sender",
		},
		Outcome: registry.OutcomeOK,
	}
}

func createTestEntity(id, owner string, seq int64, controllers ...string) registry.EntityRecord {
	if controllers == nil {
		controllers = []string{}
	}
	return registry.EntityRecord{
		EntityID:     id,
		Owner:        &owner,
		Controllers:  controllers,
		LastSequence: &seq,
		RegisteredAt: 1000,
	}
}
