package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/switchyard/internal/logging"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps sql.DB with transaction helpers.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open creates a database connection and applies the schema.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
	if cfg.Path == MemoryPath {
		dsn = "file::memory:?_foreign_keys=on"
		// Every connection would otherwise see its own empty database.
		cfg.MaxOpenConns = 1
	} else if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("Database connection established", "path", cfg.Path)
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS states (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id  BLOB NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS edges (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id BLOB NOT NULL,
	to_id   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS edges_from ON edges (from_id, seq);
CREATE TABLE IF NOT EXISTS allow (
	state_id      BLOB NOT NULL,
	transition_id INTEGER NOT NULL,
	PRIMARY KEY (state_id, transition_id)
);
CREATE TABLE IF NOT EXISTS pointer (
	singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
	current   BLOB NOT NULL,
	nonce     INTEGER NOT NULL,
	at        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
	idx           INTEGER PRIMARY KEY,
	from_id       BLOB NOT NULL,
	to_id         BLOB NOT NULL,
	actor         BLOB NOT NULL,
	transition_id INTEGER NOT NULL,
	at            INTEGER NOT NULL
);
`

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTransaction executes fn within a transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", "err", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", "err", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", "err", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info("Closing database connection")
	return db.DB.Close()
}
