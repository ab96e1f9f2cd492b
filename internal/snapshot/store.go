// Package snapshot persists dataset snapshots as Parquet files in one flat
// directory. The directory listing is the index: a snapshot exists exactly
// when its {id}.parquet file does.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/checksum"
	"github.com/starford/autods/internal/frame"
	"github.com/starford/autods/internal/models"
	"github.com/starford/autods/internal/version"
)

// Ext is the file extension of snapshot files.
const Ext = ".parquet"

const tmpPattern = ".autods-tmp-*"

// Snapshot is the result of a successful Save.
type Snapshot struct {
	models.SnapshotMeta
	Path string `json:"path"`
}

// Store reads and writes snapshot files under a root directory.
type Store struct {
	root string
	log  *slog.Logger
	now  func() time.Time

	mu sync.Mutex // serialises the exists-check and rename in Save
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for best-effort operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot: root is not a directory: %s", abs)
	}
	s := &Store{root: abs, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Root returns the absolute storage directory.
func (s *Store) Root() string { return s.root }

// safePath maps an identifier to its file and rejects anything that is not
// a plain file name inside the root.
func (s *Store) safePath(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("snapshot: empty id")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || filepath.IsAbs(id) {
		return "", fmt.Errorf("snapshot: invalid id: %q", id)
	}
	abs := filepath.Join(s.root, id+Ext)
	if filepath.Dir(abs) != s.root {
		return "", fmt.Errorf("snapshot: id escapes storage root: %q", id)
	}
	return abs, nil
}

// Path returns the file path of id. It does not check that the file exists.
func (s *Store) Path(id string) string {
	p, err := s.safePath(id)
	if err != nil {
		return ""
	}
	return p
}

// IDFromFile returns the identifier for a snapshot file name, or false if
// name is not a snapshot file.
func IDFromFile(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, Ext) || strings.HasPrefix(base, ".") {
		return "", false
	}
	id := strings.TrimSuffix(base, Ext)
	return id, id != ""
}

// Save encodes f and writes it under a fresh identifier derived from base,
// note and the current time. An existing file is never overwritten. When
// the name is taken, the note gets a suffix "_02" through "_99", which
// still sorts after the first one. apperr.ErrAlreadyExists is returned only
// once every suffix is used.
func (s *Store) Save(ctx context.Context, f *frame.Frame, base, note string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if f == nil {
		return Snapshot{}, fmt.Errorf("snapshot: nil frame")
	}

	now := s.now()
	id := version.Name(base, note, now)
	if _, err := s.safePath(id); err != nil {
		return Snapshot{}, err
	}

	tmp, err := os.CreateTemp(s.root, tmpPattern)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, h)}
	if err := frame.WriteParquet(cw, f); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: encode %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: close temp: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, note, abs, err := s.freeName(base, note, now)
	if err != nil {
		return Snapshot{}, err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: rename: %w", err)
	}
	success = true

	return Snapshot{
		SnapshotMeta: models.SnapshotMeta{
			ID:        id,
			Base:      version.CleanBase(base),
			Note:      note,
			CreatedAt: now.Truncate(time.Second),
			File:      filepath.Base(abs),
			Size:      cw.n,
			Checksum:  hex.EncodeToString(h.Sum(nil)),
			Rows:      f.NumRows(),
			Columns:   f.Schema(),
		},
		Path: abs,
	}, nil
}

const maxCollisions = 99

// freeName picks the first unused identifier for base, note and now. The
// caller holds s.mu.
func (s *Store) freeName(base, note string, now time.Time) (id, usedNote, abs string, err error) {
	usedNote = note
	for n := 1; n <= maxCollisions; n++ {
		if n > 1 {
			usedNote = fmt.Sprintf("%s_%02d", note, n)
		}
		id = version.Name(base, usedNote, now)
		abs, err = s.safePath(id)
		if err != nil {
			return "", "", "", err
		}
		if _, statErr := os.Stat(abs); errors.Is(statErr, fs.ErrNotExist) {
			return id, usedNote, abs, nil
		}
	}
	return "", "", "", fmt.Errorf("snapshot: %s: %w", version.Name(base, note, now), apperr.ErrAlreadyExists)
}

// List returns every snapshot identifier in reverse lexicographic order.
// For a fixed base that is newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := IDFromFile(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Load decodes the snapshot id. It returns apperr.ErrNotFound when no such
// file exists.
func (s *Store) Load(ctx context.Context, id string) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.safePath(id)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("snapshot: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("snapshot: open %s: %w", id, err)
	}
	defer fh.Close()

	f, err := frame.ReadParquet(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", id, err)
	}
	return f, nil
}

// LatestVersion returns the newest identifier for base. Candidates are
// "{base}_v" directly followed by a stamp, so "sales_v2_v..." is not a
// version of "sales" while a note that embeds a stamp still is.
func (s *Store) LatestVersion(base string) (string, bool) {
	ids, err := s.List()
	if err != nil {
		s.log.Warn("snapshot: latest version", "base", base, "error", err)
		return "", false
	}
	for _, id := range ids {
		if version.BelongsTo(id, base) {
			return id, true
		}
	}
	return "", false
}

// Delete removes the snapshot file. It never returns an error: failures
// are logged and reported as false.
func (s *Store) Delete(id string) bool {
	abs, err := s.safePath(id)
	if err != nil {
		s.log.Warn("snapshot: delete", "id", id, "error", err)
		return false
	}
	if err := os.Remove(abs); err != nil {
		s.log.Warn("snapshot: delete", "id", id, "error", err)
		return false
	}
	return true
}

// Stat returns the metadata of a stored snapshot, decoding it for the row
// count and schema.
func (s *Store) Stat(ctx context.Context, id string) (models.SnapshotMeta, error) {
	abs, err := s.safePath(id)
	if err != nil {
		return models.SnapshotMeta{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.SnapshotMeta{}, fmt.Errorf("snapshot: %s: %w", id, apperr.ErrNotFound)
		}
		return models.SnapshotMeta{}, fmt.Errorf("snapshot: stat %s: %w", id, err)
	}

	f, err := s.Load(ctx, id)
	if err != nil {
		return models.SnapshotMeta{}, err
	}
	sum, size, err := checksum.File(abs)
	if err != nil {
		return models.SnapshotMeta{}, fmt.Errorf("snapshot: checksum %s: %w", id, err)
	}

	meta := models.SnapshotMeta{
		ID:        id,
		File:      filepath.Base(abs),
		Size:      size,
		Checksum:  sum,
		Rows:      f.NumRows(),
		Columns:   f.Schema(),
		CreatedAt: info.ModTime().Truncate(time.Second),
	}
	if parts, ok := version.Parse(id); ok {
		meta.Base = parts.Base
		meta.Note = parts.Note
		meta.CreatedAt = parts.CreatedAt
	} else {
		meta.Base = version.CleanBase(id)
	}
	return meta, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
