package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/garyellow/course-advisor-go/internal/config"
	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

const memoryPath = ":memory:"

// DB wraps the SQLite database. Writes go through a single-connection
// writer pool; reads use a separate pool so they never queue behind a
// long write transaction. For in-memory databases both pools are the
// same single connection.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// New opens (creating if needed) the database at dbPath and initializes the schema.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	writer, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	reader := writer
	if dbPath != memoryPath {
		// An in-memory database lives and dies with its only connection.
		writer.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

		reader, err = sql.Open("sqlite", dsn(dbPath))
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("failed to open reader pool: %w", err)
		}
		reader.SetMaxOpenConns(8)
		reader.SetMaxIdleConns(4)
		reader.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)
	}

	db := &DB{writer: writer, reader: reader, path: dbPath}

	if err := writer.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// dsn applies the connection pragmas to every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.DatabaseBusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if path != memoryPath {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		return "file:" + path + "?" + q.Encode()
	}
	return path + "?" + q.Encode()
}

// Close closes both connection pools.
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if werr := db.writer.Close(); werr != nil {
			err = werr
		}
	}
	return err
}

// Reader returns the pool used for queries.
func (db *DB) Reader() *sql.DB {
	return db.reader
}

// Writer returns the single-connection pool used for writes.
func (db *DB) Writer() *sql.DB {
	return db.writer
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// Ready checks that the schema is queryable.
func (db *DB) Ready(ctx context.Context) error {
	var n int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'courses'`).Scan(&n); err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("courses table missing")
	}
	return nil
}

// ExecBatchContext prepares query once inside a write transaction and
// hands the statement to fn. The transaction commits only if fn succeeds.
func (db *DB) ExecBatchContext(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		return fn(stmt)
	})
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// VacuumInto writes a consistent, compacted copy of the database to dest.
// dest must not exist.
func (db *DB) VacuumInto(ctx context.Context, dest string) error {
	if db.path == memoryPath {
		return fmt.Errorf("cannot snapshot an in-memory database")
	}
	if _, err := db.writer.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// warnIfSlow logs operations slower than config.SlowQueryThreshold.
func warnIfSlow(ctx context.Context, operation string, start time.Time, attrs ...any) {
	duration := time.Since(start)
	if duration <= config.SlowQueryThreshold {
		return
	}
	args := append([]any{"operation", operation, "duration_ms", duration.Milliseconds()}, attrs...)
	slog.WarnContext(ctx, "slow database operation", args...)
}
