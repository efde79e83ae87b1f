package main

import (
	"context"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/sqlite"
	"github.com/myrjola/casefile/internal/testhelpers"
	"log/slog"
	"os"
	"time"
)

// tables are counted after migrating. Only users must be non-empty on a production copy.
var tables = []string{"users", "credentials", "worlds", "game_states", "portraits"} //nolint:gochecknoglobals // fixed list

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("CASEFILE_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "CASEFILE_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Count the rows of every table as a simple smoke test that the migrated schema still reads the old data.
	for _, table := range tables {
		row := db.ReadWrite.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
		var count int
		if err = row.Scan(&count); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error fetching row count",
				slog.String("table", table), errors.SlogError(err))
			os.Exit(1)
		}
		if table == "users" && count == 0 {
			logger.LogAttrs(ctx, slog.LevelError, "no users found, something is likely wrong")
			os.Exit(1)
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "row count", slog.String("table", table), slog.Int("count", count))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
