// Package catalog keeps a SQLite manifest of the snapshot directory. The
// directory stays authoritative; the catalog is rebuilt from it on start
// and kept current by a file watcher.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/autods/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	base       TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	file       TEXT NOT NULL,
	size       INTEGER NOT NULL DEFAULT 0,
	checksum   TEXT NOT NULL DEFAULT '',
	row_count  INTEGER NOT NULL DEFAULT 0,
	col_schema TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_base ON snapshots(base);
`

// Source is the part of the snapshot store the catalog reads from.
type Source interface {
	List() ([]string, error)
	Path(id string) string
	Stat(ctx context.Context, id string) (models.SnapshotMeta, error)
}

// Index is what the service layer needs from the catalog.
type Index interface {
	Upsert(m models.SnapshotMeta) error
	Delete(id string) error
	Get(id string) (*models.SnapshotMeta, error)
	ListByBase(base string) ([]models.SnapshotMeta, error)
	Bases() ([]models.DatasetSummary, error)
	Search(query string, limit int) ([]models.SnapshotMeta, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ Index = (*DB)(nil)

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}
