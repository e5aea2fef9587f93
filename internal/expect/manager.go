package expect

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/expectctl/internal/transport"
)

// Manager tracks live sessions by id so that external consumers (the
// serve mode) can enumerate and tear them down. Each Session is still
// driven by exactly one caller at a time; the Manager only guards its own
// map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionInfo is a read-only snapshot of session metadata.
type SessionInfo struct {
	ID        string    `json:"id"`
	Alive     bool      `json:"alive"`
	CreatedAt time.Time `json:"created_at"`
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Spawn starts a child process session and registers it under a fresh id.
func (m *Manager) Spawn(argv []string, cfg transport.SpawnConfig, opts Options) (string, *Session, error) {
	sess, err := Spawn(argv, cfg, opts)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return id, sess, nil
}

// Add registers an externally created session (e.g. an attached
// descriptor) and returns its id.
func (m *Manager) Add(sess *Session) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return id
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("expect: session %q not found", id)
	}
	return sess, nil
}

// Remove closes the session and drops it from the registry.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("expect: session %q not found", id)
	}
	return sess.Close()
}

// List returns metadata for every tracked session.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for id, sess := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        id,
			Alive:     sess.IsAlive(),
			CreatedAt: sess.created,
		})
	}
	return infos
}

// Close tears down every tracked session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		_ = sess.Close()
		delete(m.sessions, id)
	}
}
