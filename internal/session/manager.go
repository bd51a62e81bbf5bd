// Package session tracks the realm sessions served by a host.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/realmbridge/internal/shared/id"
)

// Session is one connected origin and the destination realm serving it.
type Session struct {
	ID        id.SessionID `json:"id"`
	RealmID   string       `json:"realm_id"`
	Remote    string       `json:"remote"`
	StartedAt time.Time    `json:"started_at"`
}

// Stats summarizes the sessions a manager has seen
type Stats struct {
	Active int    `json:"active"`
	Total  uint64 `json:"total"`
}

// Manager holds the live sessions. It is safe for concurrent use.
type Manager struct {
	sessions sync.Map
	mu       sync.Mutex
	total    uint64
}

// NewManager creates an empty session manager
func NewManager() *Manager {
	return &Manager{}
}

// Open registers a new session for the realm and remote address.
func (m *Manager) Open(realmID, remote string) *Session {
	s := &Session{
		ID:        id.NewSessionID(),
		RealmID:   realmID,
		Remote:    remote,
		StartedAt: time.Now(),
	}
	m.sessions.Store(s.ID, s)

	m.mu.Lock()
	m.total++
	m.mu.Unlock()
	return s
}

// Close removes a session. It reports whether the session was live.
func (m *Manager) Close(sessionID id.SessionID) bool {
	_, ok := m.sessions.LoadAndDelete(sessionID)
	return ok
}

// Get returns a live session
func (m *Manager) Get(sessionID id.SessionID) (*Session, bool) {
	v, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []Session {
	var out []Session
	m.sessions.Range(func(_, v any) bool {
		out = append(out, *v.(*Session))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Stats returns session counts
func (m *Manager) Stats() Stats {
	active := 0
	m.sessions.Range(func(_, _ any) bool {
		active++
		return true
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Active: active, Total: m.total}
}
