// Package inhibit owns the system sleep-delay lock: the logind inhibitor
// handle, the refcounted lock-state machine shared by all sessions, and the
// watcher for the pre-suspend notification.
package inhibit

// Inhibitor is a handle on a system sleep lock. Implementations are not
// required to be safe for concurrent use; the Manager serializes access.
type Inhibitor interface {
	// Inhibit acquires the lock. Acquiring an already held lock is a no-op.
	Inhibit() error
	// Release drops the lock. Releasing an unheld lock is a no-op.
	Release() error
	// Held reports whether the lock is currently held
	Held() bool
}
