package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/store"
	"github.com/roach88/aclreg/internal/wire"
)

// Replay and determinism
//
// Every committed message is logged with the ordering reference and
// timestamp the engine stamped on it, so re-routing the log through a fresh
// registry must reproduce, message by message, the same outcome and the
// same notices (ids aside), and finally the same state.
//
// Replay never writes: it is a pure check over a store.

// Mismatch describes one logged message whose replay disagreed with the log.
type Mismatch struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// ReplayReport summarizes a determinism check.
type ReplayReport struct {
	Messages     int
	Mismatches   []Mismatch
	ReplayedHash string
	StoredHash   string
}

// Deterministic reports whether the replay reproduced the log and state.
func (r ReplayReport) Deterministic() bool {
	return len(r.Mismatches) == 0 && r.ReplayedHash == r.StoredHash
}

// Err returns a RuntimeError when the replay diverged, nil otherwise.
func (r ReplayReport) Err() error {
	if r.Deterministic() {
		return nil
	}
	msg := fmt.Sprintf("%d of %d messages diverged", len(r.Mismatches), r.Messages)
	if r.ReplayedHash != r.StoredHash {
		msg += fmt.Sprintf("; state hash %s != stored %s", r.ReplayedHash, r.StoredHash)
	}
	return &RuntimeError{Code: ErrCodeReplayDiverged, Message: msg}
}

// Replay rebuilds a registry from the message log in s and compares each
// message's outcome and notices, then the final state hash, with what was
// stored.
//
// A database whose state was seeded by snapshot import before any messages
// were logged will report a state mismatch; replay assumes the log is the
// complete history.
func Replay(ctx context.Context, s *store.Store, opts registry.Options) (ReplayReport, error) {
	records, err := s.ReadMessages(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	reg := registry.New(opts)
	router := registry.NewRouter(reg)
	report := ReplayReport{Messages: len(records)}

	for _, rec := range records {
		res := router.Route(rec.Message)
		if reason := compareResult(rec, res); reason != "" {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq:    rec.Seq,
				ID:     rec.ID,
				Action: rec.Message.Action,
				Reason: reason,
			})
			slog.Warn("replay diverged",
				"seq", rec.Seq,
				"id", rec.ID,
				"action", rec.Message.Action,
				"reason", reason,
			)
		}
	}

	report.ReplayedHash, err = reg.StateHash()
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	stored, err := s.LoadState(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	report.StoredHash, err = registry.HashState(stored)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	return report, nil
}

// compareResult returns "" when the replayed result matches the log.
func compareResult(rec store.MessageRecord, res registry.Result) string {
	if rec.Outcome != res.Outcome {
		return fmt.Sprintf("outcome %q, logged %q", res.Outcome, rec.Outcome)
	}
	if len(rec.Notices) != len(res.Notices) {
		return fmt.Sprintf("%d notices, logged %d", len(res.Notices), len(rec.Notices))
	}
	for i := range rec.Notices {
		if !sameNotice(rec.Notices[i], res.Notices[i]) {
			return fmt.Sprintf("notice %d (%s) differs", i, rec.Notices[i].Action)
		}
	}
	return ""
}

// sameNotice compares notices ignoring their generated ids.
func sameNotice(a, b wire.Notice) bool {
	if a.Target != b.Target || a.Action != b.Action || a.Data != b.Data || len(a.Tags) != len(b.Tags) {
		return false
	}
	for k, v := range a.Tags {
		if bv, ok := b.Tags[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
