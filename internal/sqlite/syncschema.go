package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/myrjola/casefile/internal/errors"
	"github.com/myrjola/casefile/internal/random"
	"log/slog"
	"strings"
)

// migrateTo makes the database schema match schemaDefinition.
//
// The migration is declarative. The target schema is created in a scratch in-memory database which is attached to
// the live one, and the differences are applied:
//
//  1. tables missing from the target are dropped,
//  2. new tables are created,
//  3. changed tables are rebuilt with the 12-step procedure, https://www.sqlite.org/lang_altertable.html#otheralter,
//  4. indexes and triggers are dropped and recreated where they differ.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	var (
		err  error
		conn *sql.Conn
	)
	// Pragmas and ATTACH don't work inside a transaction so the whole migration runs on one dedicated connection.
	if conn, err = db.ReadWrite.Conn(ctx); err != nil {
		return errors.Wrap(err, "reserve connection")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to release connection",
				errors.SlogError(errors.Wrap(closeErr, "close connection")))
		}
	}()

	var (
		randomID     string
		dbNameLength uint = 20
		target       *sql.DB
	)
	if randomID, err = random.Letters(dbNameLength); err != nil {
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomID)
	if target, err = sql.Open("sqlite3", targetDSN); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target database",
				errors.SlogError(errors.Wrap(closeErr, "close schema target")))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "create schema in target database")
	}

	// Step 1: Disable foreign key enforcement while tables are rebuilt.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign keys")
	}
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}

	migrateErr := db.migrateInTx(ctx, conn)

	// Step 12: Re-enable foreign key enforcement.
	var cleanupErr error
	if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
		cleanupErr = errors.Wrap(detachErr, "detach schema target database")
	}
	if _, pragmaErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); pragmaErr != nil {
		cleanupErr = errors.Join(cleanupErr, errors.Wrap(pragmaErr, "re-enable foreign keys"))
	}
	return errors.Join(migrateErr, cleanupErr)
}

func (db *Database) migrateInTx(ctx context.Context, conn *sql.Conn) error {
	var (
		err error
		tx  *sql.Tx
	)
	// Step 2: Start transaction.
	if tx, err = conn.BeginTx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back migration",
				errors.SlogError(errors.Wrap(rollbackErr, "rollback")))
		}
	}()

	// Steps 3-7.
	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	// Steps 8-9.
	if err = db.migrateIndexesAndTriggers(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate indexes and triggers")
	}

	// Step 10: Check foreign key constraints.
	var violations []string
	if violations, err = queryStringSlice(ctx, tx, `SELECT "table" FROM pragma_foreign_key_check`); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration",
			slog.String("tables", strings.Join(violations, ",")))
	}

	// Step 11: Commit.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	var err error

	var deletedTables []string
	if deletedTables, err = queryStringSlice(ctx, tx, `SELECT current.name
FROM main.sqlite_schema AS current
         LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deletedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table))
		}
	}

	var newTableSQLs []string
	if newTableSQLs, err = queryStringSlice(ctx, tx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
         LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, query := range newTableSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", query))
		if _, err = tx.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "create table", slog.String("query", query))
		}
	}

	var changedTables []changedTable
	if changedTables, err = queryChangedTables(ctx, tx); err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
			slog.String("table", table.name),
			slog.String("current_sql", table.currentSQL),
			slog.String("new_sql", table.newSQL))
		if err = rebuildTable(ctx, tx, table); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", table.name))
		}
	}
	return nil
}

func rebuildTable(ctx context.Context, tx *sql.Tx, table changedTable) error {
	var err error

	// Step 4: Create the new definition under a temporary name.
	tempName := table.name + "_migration_temp"
	tempSQL := strings.Replace(table.newSQL, table.name, tempName, 1)
	if _, err = tx.ExecContext(ctx, tempSQL); err != nil {
		return errors.Wrap(err, "create temporary table", slog.String("query", tempSQL))
	}

	// Step 5: Copy the columns both definitions share.
	var commonColumns []string
	if commonColumns, err = queryStringSlice(ctx, tx, `SELECT '"' || target.name || '"'
FROM pragma_table_info(:table_name, 'main') AS current
         JOIN pragma_table_info(:table_name, 'schemaTarget') AS target ON target.name = current.name`,
		sql.Named("table_name", table.name)); err != nil {
		return errors.Wrap(err, "query common columns")
	}
	if len(commonColumns) > 0 {
		columns := strings.Join(commonColumns, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", tempName, columns, columns, table.name)
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy data", slog.String("query", copySQL))
		}
	}

	// Step 6: Drop the old table.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.name)); err != nil {
		return errors.Wrap(err, "drop old table")
	}

	// Step 7: Rename the new table.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tempName, table.name)); err != nil {
		return errors.Wrap(err, "rename table")
	}
	return nil
}

// migrateIndexesAndTriggers drops indexes and triggers that are gone or changed and creates the ones that are new or
// changed. Rebuilt tables lost theirs in step 6, so they are recreated here too.
func (db *Database) migrateIndexesAndTriggers(ctx context.Context, tx *sql.Tx) error {
	var (
		err  error
		rows *sql.Rows
	)
	type object struct {
		kind string
		name string
	}
	var stale []object
	if rows, err = tx.QueryContext(ctx, `SELECT current.type, current.name
FROM main.sqlite_schema AS current
         LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type IN ('index', 'trigger')
  AND current.sql IS NOT NULL
  AND (target.sql IS NULL OR current.sql <> target.sql)`); err != nil {
		return errors.Wrap(err, "query stale indexes and triggers")
	}
	for rows.Next() {
		var o object
		if err = rows.Scan(&o.kind, &o.name); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "scan stale object")
		}
		stale = append(stale, o)
	}
	if err = errors.Join(rows.Err(), rows.Close()); err != nil {
		return errors.Wrap(err, "iterate stale objects")
	}
	for _, o := range stale {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping "+o.kind, slog.String("name", o.name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s %q", strings.ToUpper(o.kind), o.name)); err != nil {
			return errors.Wrap(err, "drop "+o.kind, slog.String("name", o.name))
		}
	}

	var createSQLs []string
	if createSQLs, err = queryStringSlice(ctx, tx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
         LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type IN ('index', 'trigger')
  AND target.sql IS NOT NULL
  AND current.sql IS NULL
ORDER BY target.type`); err != nil {
		return errors.Wrap(err, "query new indexes and triggers")
	}
	for _, query := range createSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating index or trigger", slog.String("query", query))
		if _, err = tx.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "create index or trigger", slog.String("query", query))
		}
	}
	return nil
}

// queryStringSlice returns the single column of every row a query produces.
func queryStringSlice(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	var (
		results []string
		rows    *sql.Rows
		err     error
	)
	if rows, err = tx.QueryContext(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, "query")
	}
	for rows.Next() {
		var result string
		if err = rows.Scan(&result); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan")
		}
		results = append(results, result)
	}
	if err = errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return results, nil
}

type changedTable struct {
	name       string
	currentSQL string
	newSQL     string
}

func queryChangedTables(ctx context.Context, tx *sql.Tx) ([]changedTable, error) {
	var (
		changedTables []changedTable
		rows          *sql.Rows
		err           error
	)
	if rows, err = tx.QueryContext(ctx, `SELECT current.name, current.sql, target.sql
FROM main.sqlite_schema AS current
         JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`); err != nil {
		return nil, errors.Wrap(err, "query")
	}
	for rows.Next() {
		var table changedTable
		if err = rows.Scan(&table.name, &table.currentSQL, &table.newSQL); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan")
		}
		changedTables = append(changedTables, table)
	}
	if err = errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return changedTables, nil
}
