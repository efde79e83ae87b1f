// Package repositories persists users, worlds, game states and portraits in SQLite.
package repositories

import (
	"context"
	"database/sql"
	"github.com/myrjola/casefile/internal/errors"
	"log/slog"
	"time"
)

var ErrNotFound = errors.NewSentinel("not found")

// timestampLayout matches STRFTIME('%Y-%m-%dT%H:%M:%fZ') used as column defaults.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse timestamp", slog.String("value", value))
	}
	return t, nil
}

func rollback(ctx context.Context, logger *slog.Logger, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.LogAttrs(ctx, slog.LevelError, "could not roll back", errors.SlogError(errors.Wrap(err, "rollback")))
	}
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "could not close rows", errors.SlogError(errors.Wrap(err, "close rows")))
	}
}

// notFoundOr maps sql.ErrNoRows to [ErrNotFound].
func notFoundOr(err error, msg string, attrs ...slog.Attr) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, msg, attrs...)
	}
	return errors.Wrap(err, msg, attrs...)
}
