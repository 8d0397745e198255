package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/logging"
	"github.com/entrhq/browserforge/pkg/stealth"
)

// SessionManager manages all active browser sessions.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	launcher    Launcher
	logger      *logging.Logger
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// NewSessionManager creates a new session manager.
func NewSessionManager(launcher Launcher, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		launcher:    launcher,
		logger:      logging.Nop(),
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create launches a driver for cfg and registers it under id. An empty id
// gets a generated one. Stealth is applied when cfg enables it.
func (m *SessionManager) Create(ctx context.Context, cfg *config.DriverConfig, id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	// Reserve the id so concurrent creates cannot race past the checks
	// while the browser starts.
	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, forgeerr.Config(fmt.Sprintf("session ID already exists: %s", id),
			"Use a different session ID or close existing session").
			WithCode(forgeerr.CodeSessionExists)
	}
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, forgeerr.Config(fmt.Sprintf("maximum number of sessions (%d) reached", m.maxSessions),
			"Close an existing session first").
			WithCode(forgeerr.CodeSessionLimit)
	}
	m.sessions[id] = nil
	m.mu.Unlock()

	session, err := m.start(ctx, cfg, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.sessions, id)
		return nil, err
	}
	m.sessions[id] = session
	m.logger.Infof("session %s created (%s)", id, cfg.Browser)
	return session, nil
}

func (m *SessionManager) start(ctx context.Context, cfg *config.DriverConfig, id string) (*Session, error) {
	driver, report, err := Open(ctx, m.launcher, cfg, m.logger)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return &Session{
		ID:           id,
		Driver:       driver,
		Config:       cfg,
		Stealth:      report,
		CreatedAt:    now,
		LastActivity: now,
	}, nil
}

// Open launches a driver for cfg and applies stealth when cfg enables it.
// Launch failures that are not already forge errors become config errors.
func Open(ctx context.Context, launcher Launcher, cfg *config.DriverConfig, logger *logging.Logger) (Driver, stealth.Report, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	driver, err := launcher.Launch(ctx, cfg)
	if err != nil {
		if _, ok := forgeerr.As(err); ok {
			return nil, stealth.Report{}, err
		}
		return nil, stealth.Report{}, forgeerr.Config(fmt.Sprintf("failed to create session: %v", err), "").
			WithCause(err).
			WithCode(forgeerr.CodeBrowserLaunch)
	}

	var report stealth.Report
	if cfg.StealthEnabled() {
		engine := stealth.New(cfg.Stealth, stealth.WithLogger(logger))
		report = engine.Apply(ctx, driver)
	}
	return driver, report, nil
}

// Get returns the session and marks it active.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.sessions[id]
	if session == nil {
		return nil, false
	}
	session.LastActivity = m.now()
	return session, true
}

// Close quits the session's browser and removes it. It reports whether the
// session existed.
func (m *SessionManager) Close(id string) bool {
	m.mu.Lock()
	session := m.sessions[id]
	if session == nil {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := session.Driver.Close(); err != nil {
		m.logger.Warnf("session %s: close failed: %v", id, err)
	}
	m.logger.Infof("session %s closed", id)
	return true
}

// CloseAll closes every session and returns how many were closed.
func (m *SessionManager) CloseAll() int {
	closed := 0
	for _, id := range m.ids() {
		if m.Close(id) {
			closed++
		}
	}
	return closed
}

// CleanupIdle closes sessions idle for longer than timeout, or the
// manager's idle timeout when timeout is zero. It returns how many were
// closed.
func (m *SessionManager) CleanupIdle(timeout time.Duration) int {
	m.mu.RLock()
	if timeout <= 0 {
		timeout = m.idleTimeout
	}
	now := m.now()
	var idle []string
	for id, session := range m.sessions {
		if session != nil && now.Sub(session.LastActivity) > timeout {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if m.Close(id) {
			closed++
		}
	}
	return closed
}

// Info describes a session. IsActive reports whether the browser still
// answers a trivial script.
func (m *SessionManager) Info(ctx context.Context, id string) (SessionInfo, bool) {
	m.mu.RLock()
	session := m.sessions[id]
	m.mu.RUnlock()
	if session == nil {
		return SessionInfo{}, false
	}
	return describe(ctx, session), true
}

// List describes every session, oldest first.
func (m *SessionManager) List(ctx context.Context) []SessionInfo {
	infos := make([]SessionInfo, 0)
	for _, id := range m.ids() {
		if info, ok := m.Info(ctx, id); ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

func describe(ctx context.Context, s *Session) SessionInfo {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.Driver.Evaluate(probeCtx, "() => true")

	return SessionInfo{
		ID:           s.ID,
		Browser:      s.Driver.BrowserName(),
		URL:          s.Driver.URL(),
		Headless:     s.Config.BrowserOptions.Headless,
		Stealth:      s.Config.StealthEnabled(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		IsActive:     err == nil,
	}
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	return len(m.ids())
}

// HasSessions returns true if there are any active sessions.
func (m *SessionManager) HasSessions() bool {
	return m.Count() > 0
}

// ids returns the ids of fully created sessions.
func (m *SessionManager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id, session := range m.sessions {
		if session != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetMaxSessions sets the maximum number of concurrent sessions.
func (m *SessionManager) SetMaxSessions(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = max
}

// SetIdleTimeout sets the idle timeout used by CleanupIdle.
func (m *SessionManager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// WithSession creates a session, passes it to fn and always closes it
// afterwards. fn's error is returned.
func WithSession(ctx context.Context, m *SessionManager, cfg *config.DriverConfig, fn func(*Session) error) error {
	session, err := m.Create(ctx, cfg, cfg.SessionID)
	if err != nil {
		return err
	}
	defer m.Close(session.ID)

	return fn(session)
}
