// Package workbench is the service layer between the UI surfaces and the
// snapshot store. Every committed change follows the same path: transform,
// save, update the session registry, append to the action log, upsert the
// catalog, publish an event.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/assistant"
	"github.com/starford/autods/internal/catalog"
	"github.com/starford/autods/internal/explore"
	"github.com/starford/autods/internal/frame"
	"github.com/starford/autods/internal/models"
	"github.com/starford/autods/internal/session"
	"github.com/starford/autods/internal/snapshot"
	"github.com/starford/autods/internal/sse"
	"github.com/starford/autods/internal/transform"
	"github.com/starford/autods/internal/version"
)

// ErrNoActiveDataset is returned by operations that need an active dataset
// when none is selected.
var ErrNoActiveDataset = errors.New("no active dataset")

// ErrInvalidUpload wraps CSV parse failures of Import.
var ErrInvalidUpload = errors.New("invalid upload")

// NoActiveDatasetHint is the guidance shown for ErrNoActiveDataset.
const NoActiveDatasetHint = "No dataset is active. Import a CSV file or load a saved version first."

// NoteInitial is the version note of an imported dataset.
const NoteInitial = "initial"

// Publisher receives change notifications. *sse.Broker implements it.
type Publisher interface {
	Publish(sse.Event)
	PublishSnapshotEvent(kind, id string)
}

// Service coordinates the store, catalog, sessions and collaborators.
type Service struct {
	store     *snapshot.Store
	catalog   catalog.Index
	sessions  *session.Manager
	explorer  *explore.Explorer
	assistant *assistant.Assistant
	events    Publisher
	log       *slog.Logger
	csvOpts   frame.CSVOptions
}

// Option configures a Service.
type Option func(*Service)

func WithExplorer(e *explore.Explorer) Option   { return func(s *Service) { s.explorer = e } }
func WithAssistant(a *assistant.Assistant) Option { return func(s *Service) { s.assistant = a } }
func WithEvents(p Publisher) Option             { return func(s *Service) { s.events = p } }
func WithLogger(l *slog.Logger) Option          { return func(s *Service) { s.log = l } }

// WithMaxImportRows limits how many CSV data rows Import reads.
func WithMaxImportRows(n int) Option {
	return func(s *Service) { s.csvOpts.MaxRows = n }
}

// NewService builds a Service. idx may be nil when no catalog is kept.
func NewService(store *snapshot.Store, idx catalog.Index, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  idx,
		sessions: session.NewManager(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.assistant == nil {
		s.assistant = assistant.New(assistant.Config{}, s.log)
	}
	return s
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Session looks up a live session.
func (s *Service) Session(id string) (*session.Session, error) {
	return s.sessions.Get(id)
}

// Import parses a CSV upload and saves it as the first version of a dataset
// named after the file.
func (s *Service) Import(ctx context.Context, sess *session.Session, filename string, r io.Reader) (snapshot.Snapshot, error) {
	f, err := frame.ReadCSV(r, s.csvOpts)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("import %s: %w: %w", filename, ErrInvalidUpload, err)
	}
	rows, cols := f.Shape()
	action := fmt.Sprintf("Imported dataset '%s' with shape (%d, %d)", filepath.Base(filename), rows, cols)
	return s.Save(ctx, sess, f, filename, NoteInitial, action)
}

// Save persists f as a new version of base, makes it the session's active
// dataset and logs action (a default description when empty).
func (s *Service) Save(ctx context.Context, sess *session.Session, f *frame.Frame, base, note, action string) (snapshot.Snapshot, error) {
	snap, err := s.store.Save(ctx, f, base, note)
	if err != nil {
		s.log.Error("workbench: save failed", slog.String("base", base), slog.String("note", note), slog.String("error", err.Error()))
		return snapshot.Snapshot{}, err
	}
	if action == "" {
		action = "Saved version " + snap.ID
	}
	sess.Commit(snap.Base, snap.ID, snap.Path, f, action)
	s.index(snap.SnapshotMeta)
	s.publishSnapshot(sse.KindCreated, snap.ID)
	s.log.Info("workbench: saved", slog.String("id", snap.ID), slog.String("session", sess.ID))
	return snap, nil
}

// Apply runs a transformation on the active dataset and saves the result
// with the operation name as its note. On failure nothing changes.
func (s *Service) Apply(ctx context.Context, sess *session.Session, op string, params transform.Params) (snapshot.Snapshot, error) {
	active, ok := sess.Active()
	if !ok {
		return snapshot.Snapshot{}, ErrNoActiveDataset
	}
	res, err := transform.Apply(active.Frame, op, params)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return s.Save(ctx, sess, res.Frame, active.Name, op, res.Description)
}

// List returns every snapshot id, newest first.
func (s *Service) List() ([]string, error) {
	return s.store.List()
}

// Load reads a snapshot and makes it the session's active dataset.
func (s *Service) Load(ctx context.Context, sess *session.Session, id string) (session.Entry, error) {
	f, err := s.store.Load(ctx, id)
	if err != nil {
		return session.Entry{}, err
	}
	name := version.CleanBase(id)
	if p, ok := version.Parse(id); ok {
		name = p.Base
	}
	e := sess.Commit(name, id, s.store.Path(id), f, "Loaded version "+id)
	s.publishActive(sess, e)
	return e, nil
}

// Select switches the active dataset of sess to a dataset it already holds.
func (s *Service) Select(sess *session.Session, name string) (session.Entry, error) {
	e, err := sess.Select(name)
	if err != nil {
		return session.Entry{}, err
	}
	sess.Log("Selected dataset " + name)
	s.publishActive(sess, e)
	return e, nil
}

// Active returns the active dataset of sess or ErrNoActiveDataset.
func (s *Service) Active(sess *session.Session) (session.Entry, error) {
	e, ok := sess.Active()
	if !ok {
		return session.Entry{}, ErrNoActiveDataset
	}
	return e, nil
}

// Latest returns the metadata of the newest snapshot of base.
func (s *Service) Latest(ctx context.Context, base string) (models.SnapshotMeta, error) {
	id, ok := s.store.LatestVersion(base)
	if !ok {
		return models.SnapshotMeta{}, fmt.Errorf("dataset %q: %w", base, apperr.ErrNotFound)
	}
	return s.Meta(ctx, id)
}

// Meta returns snapshot metadata, from the catalog when it has the row.
func (s *Service) Meta(ctx context.Context, id string) (models.SnapshotMeta, error) {
	if s.catalog != nil {
		if m, err := s.catalog.Get(id); err == nil {
			return *m, nil
		}
	}
	m, err := s.store.Stat(ctx, id)
	if err != nil {
		return models.SnapshotMeta{}, err
	}
	s.index(m)
	return m, nil
}

// Delete removes a snapshot from disk and catalog and from every session
// registry. It reports false when nothing was deleted.
func (s *Service) Delete(sess *session.Session, id string) bool {
	if !s.store.Delete(id) {
		return false
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(id); err != nil {
			s.log.Warn("workbench: catalog delete failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	s.sessions.ForgetAll(id)
	if sess != nil {
		sess.Forget(id)
		sess.Log("Deleted version " + id)
	}
	s.publishSnapshot(sse.KindDeleted, id)
	return true
}

// Frame reads a snapshot without touching any session.
func (s *Service) Frame(ctx context.Context, id string) (*frame.Frame, error) {
	return s.store.Load(ctx, id)
}

// Preview returns the first n rows of a snapshot.
func (s *Service) Preview(ctx context.Context, id string, n int) (*frame.Frame, error) {
	f, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.Head(n), nil
}

// Describe returns per-column statistics of a snapshot.
func (s *Service) Describe(ctx context.Context, id string) ([]frame.ColumnStats, error) {
	f, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return frame.Describe(f), nil
}

// Export writes a snapshot as CSV.
func (s *Service) Export(ctx context.Context, id string, w io.Writer) error {
	f, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	return frame.WriteCSV(w, f)
}

// Query runs read-only SQL against a snapshot.
func (s *Service) Query(ctx context.Context, id, query string) (*explore.Result, error) {
	if s.explorer == nil {
		return nil, errors.New("query engine disabled")
	}
	path := s.store.Path(id)
	if path == "" {
		return nil, fmt.Errorf("snapshot %q: %w", id, apperr.ErrNotFound)
	}
	if _, err := s.Meta(ctx, id); err != nil {
		return nil, err
	}
	return s.explorer.Query(ctx, path, query)
}

// Chat asks the assistant about the active dataset. It always returns a
// displayable reply.
func (s *Service) Chat(ctx context.Context, sess *session.Session, question string) string {
	dataCtx := assistant.NoDataset
	if e, ok := sess.Active(); ok && e.Frame != nil {
		dataCtx = frame.Markdown(e.ID, e.Frame, 3)
	}
	prior := sess.Chat()
	history := make([]assistant.Turn, len(prior))
	for i, t := range prior {
		history[i] = assistant.Turn{Role: t.Role, Content: t.Content}
	}

	reply := s.assistant.Chat(ctx, dataCtx, sess.ActionLines(), history, question)
	sess.AddChat(
		session.ChatTurn{Role: assistant.RoleUser, Content: question},
		session.ChatTurn{Role: assistant.RoleAssistant, Content: reply},
	)
	return reply
}

// Insight asks the assistant a one-off question about the active dataset.
// Nothing is recorded in the chat history.
func (s *Service) Insight(ctx context.Context, sess *session.Session, prompt string) (string, error) {
	e, err := s.Active(sess)
	if err != nil {
		return "", err
	}
	return s.assistant.Insight(ctx, prompt, frame.Markdown(e.ID, e.Frame, 5)), nil
}

// Versions lists the catalogued snapshots of base, newest first.
func (s *Service) Versions(base string) ([]models.SnapshotMeta, error) {
	if s.catalog == nil {
		return []models.SnapshotMeta{}, nil
	}
	return s.catalog.ListByBase(version.CleanBase(base))
}

// Datasets summarises the catalog by base name.
func (s *Service) Datasets() ([]models.DatasetSummary, error) {
	if s.catalog == nil {
		return []models.DatasetSummary{}, nil
	}
	return s.catalog.Bases()
}

// Search looks snapshots up in the catalog.
func (s *Service) Search(query string, limit int) ([]models.SnapshotMeta, error) {
	if s.catalog == nil {
		return []models.SnapshotMeta{}, nil
	}
	return s.catalog.Search(query, limit)
}

func (s *Service) index(m models.SnapshotMeta) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Upsert(m); err != nil {
		s.log.Warn("workbench: catalog upsert failed", slog.String("id", m.ID), slog.String("error", err.Error()))
	}
}

func (s *Service) publishSnapshot(kind, id string) {
	if s.events != nil {
		s.events.PublishSnapshotEvent(kind, id)
	}
}

func (s *Service) publishActive(sess *session.Session, e session.Entry) {
	if s.events == nil {
		return
	}
	s.events.Publish(sse.Event{Type: sse.TypeDatasetActive, Data: map[string]string{
		"session": sess.ID,
		"name":    e.Name,
		"id":      e.ID,
	}})
}
