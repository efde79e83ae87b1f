package sqlite

import (
	"context"
	"github.com/myrjola/casefile/internal/errors"
	"log/slog"
	"time"
)

// startOptimizer runs PRAGMA optimize every hour until ctx is done.
// See https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) startOptimizer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Hour):
		}
		start := time.Now()
		if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to optimize database",
				errors.SlogError(errors.Wrap(err, "optimize database")))
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "optimized database", slog.Duration("duration", time.Since(start)))
	}
}
