package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/autods/internal/apperr"
	"github.com/starford/autods/internal/frame"
)

// Session bundles the registry, action log and navigation of one user.
// All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	registry *Registry
	actions  *ActionLog
	nav      *Navigation
	chat     []ChatTurn
}

// ChatTurn is one message of the assistant conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// New returns a fresh session with the given id.
func New(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		registry:  NewRegistry(),
		actions:   NewActionLog(),
		nav:       NewNavigation(),
	}
}

// Commit records a saved snapshot as the active dataset and logs action.
// An empty action is not logged.
func (s *Session) Commit(name, id, path string, f *frame.Frame, action string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.registry.Record(name, id, path, f)
	if action != "" {
		s.actions.Append(action)
	}
	return e
}

// Forget removes registry entries for a deleted snapshot.
func (s *Session) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Forget(id)
}

// Select makes the named dataset active.
func (s *Session) Select(name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Select(name)
}

func (s *Session) Active() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Active()
}

func (s *Session) Datasets() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Datasets()
}

// Log appends description to the action log.
func (s *Session) Log(description string) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions.Append(description)
}

func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions.Read()
}

func (s *Session) ActionLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions.Lines()
}

func (s *Session) Push(page string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Push(page)
}

func (s *Session) Back() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Back()
}

func (s *Session) Home() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Reset()
}

// Location returns the current page and the history stack.
func (s *Session) Location() (string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Current(), s.nav.History()
}

// AddChat appends turns to the conversation.
func (s *Session) AddChat(turns ...ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append(s.chat, turns...)
}

// Chat returns a copy of the conversation.
func (s *Session) Chat() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatTurn, len(s.chat))
	copy(out, s.chat)
	return out
}

// Info is a listing row for a session.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Active    string    `json:"active,omitempty"`
	Actions   int       `json:"actions"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := Info{ID: s.ID, CreatedAt: s.CreatedAt, Actions: len(s.actions.items)}
	if e, ok := s.registry.Active(); ok {
		in.Active = e.ID
	}
	return in
}

// Manager owns the live sessions keyed by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a session under a random UUID.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session id or apperr.ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, len(all))
	for i, s := range all {
		out[i] = s.info()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// End discards a session. Snapshots it saved stay on disk.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %q: %w", id, apperr.ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

// ForgetAll removes registry entries for id from every session.
func (m *Manager) ForgetAll(id string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.Forget(id)
	}
}
