package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// Config holds store connection settings.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id              TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	filepath        TEXT NOT NULL,
	content_hash    TEXT NOT NULL UNIQUE,
	size_bytes      INTEGER NOT NULL,
	mime_type       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	selected_engine TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id                      TEXT PRIMARY KEY,
	file_id                 TEXT NOT NULL REFERENCES files(id),
	text_content            TEXT NOT NULL,
	page_count              INTEGER NOT NULL,
	confidence_score        REAL,
	processing_time_seconds REAL NOT NULL DEFAULT 0,
	processed_at            TIMESTAMP NOT NULL,
	is_synced               INTEGER NOT NULL DEFAULT 0,
	needs_sync              INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_documents_file_id ON documents(file_id);

CREATE TABLE IF NOT EXISTS document_pages (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page_number    INTEGER NOT NULL,
	text_content   TEXT NOT NULL,
	confidence     REAL NOT NULL DEFAULT 0,
	bounding_boxes TEXT NOT NULL DEFAULT '',
	UNIQUE(document_id, page_number)
);
`

// Open opens or creates the store and applies PRAGMAs and the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	logger.Info("opening database", "path", cfg.Path)
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, err
	}

	// WAL so watcher registration and worker commits do not serialize on
	// the whole file.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		logger.Error("failed to apply schema", "error", err)
		return nil, err
	}

	logger.Info("database ready")
	return db, nil
}

// Close closes the store gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return
	}
	logger.Info("database closed")
}

// HealthCheck pings the store to catch path/permission issues early.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}
