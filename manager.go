package mqjs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTooManySessions is returned when creating a session would exceed
	// ManagerConfig.MaxSessions.
	ErrTooManySessions = errors.New("mqjs: too many sessions")

	// ErrClosed is returned by Manager operations after Shutdown.
	ErrClosed = errors.New("mqjs: manager closed")
)

// ManagerConfig bounds the sessions a Manager keeps alive.
type ManagerConfig struct {
	MaxSessions int           `koanf:"max_sessions"` // 0 means unlimited
	IdleTimeout time.Duration `koanf:"idle_timeout"` // 0 disables eviction
}

// Manager keeps named sessions, one per client, created on first use.
type Manager struct {
	cfg  Config
	mcfg ManagerConfig
	opts []Option
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager returns a Manager whose sessions all use cfg. The options
// apply to every session it creates; the logger is also used by the
// Manager itself.
func NewManager(cfg Config, mcfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if mcfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max_sessions must not be negative, got %d", mcfg.MaxSessions)
	}
	return &Manager{
		cfg:      cfg,
		mcfg:     mcfg,
		opts:     opts,
		log:      buildOptions(opts).log,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the session named id, creating it if needed.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if m.mcfg.MaxSessions > 0 && len(m.sessions) >= m.mcfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	opts := append(m.opts[:len(m.opts):len(m.opts)], WithLogger(m.log.With(zap.String("session", id))))
	s, err := NewSession(m.cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = s
	m.log.Info("session created", zap.String("session", id), zap.Int("sessions", len(m.sessions)))
	return s, nil
}

// MemoryBudget returns the engine heap limit of the Manager's sessions.
func (m *Manager) MemoryBudget() int {
	return m.cfg.memoryBudget()
}

// Lookup returns the session named id without creating it.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove cleans up and forgets the session named id. It reports whether
// the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Cleanup()
		m.log.Info("session removed", zap.String("session", id))
	}
	return ok
}

// IDs returns the names of the live sessions in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than IdleTimeout as of now and
// returns how many it removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.mcfg.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.mcfg.IdleTimeout {
			stale = append(stale, s)
			delete(m.sessions, id)
			m.log.Info("evicting idle session", zap.String("session", id))
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Cleanup()
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.mcfg.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Shutdown cleans up every session. Later calls to Get fail with
// ErrClosed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cleanup()
	}
	m.log.Info("session manager shut down", zap.Int("sessions", len(sessions)))
}
