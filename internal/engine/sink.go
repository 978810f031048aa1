package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/aclreg/internal/wire"
)

// LogSink publishes notices as structured log records. ACL patches are
// logged at Info so operators can follow what is pushed to the consistency
// layer; everything else at Debug.
type LogSink struct {
	Logger *slog.Logger // nil: slog.Default()
}

// Publish implements Sink.
func (s LogSink) Publish(ctx context.Context, seq int64, notices []wire.Notice) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, n := range notices {
		level := slog.LevelDebug
		if n.IsPatch() {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "notice",
			"seq", seq,
			"id", n.ID,
			"target", n.Target,
			"action", n.Action,
			"error", n.ErrorCode(),
			"data", n.Data,
		)
	}
	return nil
}
