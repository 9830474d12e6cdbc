package inhibit

import (
	"sync"
	"time"

	"github.com/ericghara/no-doze/internal/logger"
)

// Manager tracks which sessions currently want sleep inhibited and owns the
// single system block-mode lock. The lock is acquired on the 0→1 refcount
// transition and released on 1→0; both the refcount mutation and the system
// call happen under one mutex so the invariant `lock held ⇔ refcount > 0`
// holds across every transition.
type Manager struct {
	mu        sync.Mutex
	inhibitor Inhibitor
	sessions  map[string]bool // sessions with intent true
	shutdown  bool

	retryDelay time.Duration
	maxRetry   time.Duration
	retryTimer *time.Timer

	// onError reports lock acquisition failures so the daemon can notify
	// connected sessions
	onError func(error)
}

// NewManager creates a lock manager around the given system inhibitor
func NewManager(inhibitor Inhibitor, retryDelay time.Duration) *Manager {
	return &Manager{
		inhibitor:  inhibitor,
		sessions:   make(map[string]bool),
		retryDelay: retryDelay,
		maxRetry:   time.Minute,
	}
}

// SetOnError registers a callback invoked (off the manager's mutex) when a
// lock acquisition fails
func (m *Manager) SetOnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// SetIntent records a session's inhibition intent. Repeating the current
// intent changes nothing; a release from a session with no outstanding
// request is a no-op logged as a protocol anomaly.
func (m *Manager) SetIntent(session string, inhibit bool) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}

	var notify error
	if inhibit {
		if m.sessions[session] {
			m.mu.Unlock()
			return
		}
		m.sessions[session] = true
		logger.WithSession(session).WithField("refcount", len(m.sessions)).
			Debug("Session requested inhibition")
		if len(m.sessions) == 1 {
			notify = m.acquireLocked()
		}
	} else {
		if !m.sessions[session] {
			m.mu.Unlock()
			logger.WithSession(session).Warn("Release without a matching request, ignoring")
			return
		}
		delete(m.sessions, session)
		logger.WithSession(session).WithField("refcount", len(m.sessions)).
			Debug("Session released inhibition")
		if len(m.sessions) == 0 {
			m.releaseLocked()
		}
	}
	onError := m.onError
	m.mu.Unlock()

	if notify != nil && onError != nil {
		onError(notify)
	}
}

// DropSession removes a session's contribution as if a release had been
// received, used when its connection is lost
func (m *Manager) DropSession(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sessions[session] {
		return
	}
	delete(m.sessions, session)
	logger.WithSession(session).WithField("refcount", len(m.sessions)).
		Info("Dropped disconnected session's inhibition")
	if len(m.sessions) == 0 {
		m.releaseLocked()
	}
}

// Refcount returns the number of sessions currently requesting inhibition
func (m *Manager) Refcount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Held reports whether the system lock is currently held
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inhibitor.Held()
}

// Sessions returns the ids of sessions currently requesting inhibition
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown drains the manager to Released, dropping the system lock
// irrespective of refcount so no inhibitor leaks past process exit
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.sessions = make(map[string]bool)
	m.releaseLocked()
}

// acquireLocked takes the system lock. Called with the mutex held; the system
// call is expected to be fast (bounded by bus latency). On failure a retry is
// scheduled with backoff and the error is returned for session notification.
func (m *Manager) acquireLocked() error {
	err := m.inhibitor.Inhibit()
	if err == nil {
		logger.WithField("refcount", len(m.sessions)).Info("Acquired system sleep lock")
		return nil
	}

	logger.WithError(err).Error("Failed to acquire system sleep lock")
	m.scheduleRetryLocked(m.retryDelay)
	return err
}

// releaseLocked drops the system lock and cancels any pending retry. Called
// with the mutex held.
func (m *Manager) releaseLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if !m.inhibitor.Held() {
		return
	}
	if err := m.inhibitor.Release(); err != nil {
		logger.WithError(err).Error("Failed to release system sleep lock")
		return
	}
	logger.Info("Released system sleep lock")
}

// scheduleRetryLocked arms a retry of the lock acquisition. Called with the
// mutex held; at most one retry timer is outstanding.
func (m *Manager) scheduleRetryLocked(delay time.Duration) {
	if m.retryTimer != nil {
		return
	}
	m.retryTimer = time.AfterFunc(delay, func() {
		m.retry(delay)
	})
}

// retry re-attempts acquisition if sessions still want inhibition
func (m *Manager) retry(lastDelay time.Duration) {
	m.mu.Lock()
	m.retryTimer = nil
	if m.shutdown || len(m.sessions) == 0 || m.inhibitor.Held() {
		m.mu.Unlock()
		return
	}

	var notify error
	if err := m.inhibitor.Inhibit(); err != nil {
		notify = err
		logger.WithError(err).Error("Retry of system sleep lock acquisition failed")
		next := lastDelay * 2
		if next > m.maxRetry {
			next = m.maxRetry
		}
		m.retryTimer = time.AfterFunc(next, func() {
			m.retry(next)
		})
	} else {
		logger.WithField("refcount", len(m.sessions)).Info("Acquired system sleep lock after retry")
	}
	onError := m.onError
	m.mu.Unlock()

	if notify != nil && onError != nil {
		onError(notify)
	}
}
