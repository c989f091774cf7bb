// Package sqlite persists settings documents in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/model"
)

// historyKeep is how many previous versions of each document are retained.
const historyKeep = 10

// Config configures the SQLite store.
type Config struct {
	Path string // database file, e.g. "data/settings.db"
	Log  *zap.Logger
}

// Store is a model.SettingsStore on SQLite. It uses a single connection so
// writes are serialized by database/sql.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite mkdir")
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}

	log.Named("sqlite").Info("opened settings database", zap.String("path", cfg.Path))
	return &Store{db: db, log: log.Named("sqlite"), now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT    PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settings_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			key        TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS settings_history_key ON settings_history (key, id);
	`)
	return err
}

// Load returns the current document under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite load %q", key)
	}
	return []byte(data), nil
}

// Save upserts the document and appends it to the history, pruning old
// versions, in one transaction.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	start := s.now()
	ts := start.Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, string(data), ts); err != nil {
		return errors.Wrapf(err, "sqlite save %q", key)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settings_history (key, data, created_at) VALUES (?, ?, ?)`,
		key, string(data), ts); err != nil {
		return errors.Wrapf(err, "sqlite history %q", key)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM settings_history
		WHERE key = ? AND id NOT IN (
			SELECT id FROM settings_history WHERE key = ? ORDER BY id DESC LIMIT ?
		)
	`, key, key, historyKeep); err != nil {
		return errors.Wrapf(err, "sqlite prune %q", key)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite commit")
	}

	s.log.Debug("settings saved", zap.String("key", key), zap.Int("bytes", len(data)), zap.Duration("took", time.Since(start)))
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
