package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/models"
)

const selectCols = `id, base, note, created_at, file, size, checksum, row_count, col_schema`

// Upsert inserts or replaces the row for m.ID.
func (db *DB) Upsert(m models.SnapshotMeta) error {
	cols := m.Columns
	if cols == nil {
		cols = []models.Column{}
	}
	schemaJSON, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("catalog: encode schema: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO snapshots (id, base, note, created_at, file, size, checksum, row_count, col_schema)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base       = excluded.base,
			note       = excluded.note,
			created_at = excluded.created_at,
			file       = excluded.file,
			size       = excluded.size,
			checksum   = excluded.checksum,
			row_count  = excluded.row_count,
			col_schema = excluded.col_schema
	`, m.ID, m.Base, m.Note, m.CreatedAt.Unix(), m.File, m.Size, m.Checksum, m.Rows, string(schemaJSON))
	if err != nil {
		return fmt.Errorf("catalog: upsert %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes the row for id. Missing rows are not an error.
func (db *DB) Delete(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(s scanner) (models.SnapshotMeta, error) {
	var (
		m          models.SnapshotMeta
		created    int64
		schemaJSON string
	)
	if err := s.Scan(&m.ID, &m.Base, &m.Note, &created, &m.File, &m.Size, &m.Checksum, &m.Rows, &schemaJSON); err != nil {
		return m, err
	}
	m.CreatedAt = time.Unix(created, 0)
	if err := json.Unmarshal([]byte(schemaJSON), &m.Columns); err != nil {
		return m, fmt.Errorf("catalog: decode schema of %s: %w", m.ID, err)
	}
	return m, nil
}

func (db *DB) queryMetas(query string, args ...any) ([]models.SnapshotMeta, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SnapshotMeta{}
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns the row for id or apperr.ErrNotFound.
func (db *DB) Get(id string) (*models.SnapshotMeta, error) {
	row := db.conn.QueryRow(`SELECT `+selectCols+` FROM snapshots WHERE id = ?`, id)
	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return &m, nil
}

// Checksum returns the stored checksum for id, or "" if it is not indexed.
func (db *DB) Checksum(id string) string {
	var cs string
	if err := db.conn.QueryRow(`SELECT checksum FROM snapshots WHERE id = ?`, id).Scan(&cs); err != nil {
		return ""
	}
	return cs
}

// ListByBase returns the snapshots of one base name, newest first.
func (db *DB) ListByBase(base string) ([]models.SnapshotMeta, error) {
	out, err := db.queryMetas(`SELECT `+selectCols+` FROM snapshots WHERE base = ? ORDER BY id DESC`, base)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", base, err)
	}
	return out, nil
}

// Bases summarises every base name with its snapshot count and newest id.
func (db *DB) Bases() ([]models.DatasetSummary, error) {
	rows, err := db.conn.Query(`
		SELECT base, count(*), max(id), max(created_at)
		FROM snapshots
		GROUP BY base
		ORDER BY base
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: bases: %w", err)
	}
	defer rows.Close()

	out := []models.DatasetSummary{}
	for rows.Next() {
		var (
			d       models.DatasetSummary
			updated int64
		)
		if err := rows.Scan(&d.Base, &d.Snapshots, &d.LatestID, &updated); err != nil {
			return nil, fmt.Errorf("catalog: bases: %w", err)
		}
		d.UpdatedAt = time.Unix(updated, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Search matches query against id, note and column names, newest first.
func (db *DB) Search(query string, limit int) ([]models.SnapshotMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	out, err := db.queryMetas(`
		SELECT `+selectCols+`
		FROM snapshots
		WHERE id LIKE ? OR note LIKE ? OR col_schema LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	return out, nil
}

// AllChecksums returns id -> checksum for every row.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM snapshots`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}
