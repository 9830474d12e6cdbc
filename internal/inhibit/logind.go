package inhibit

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/ericghara/no-doze/internal/errors"
	"github.com/ericghara/no-doze/internal/logger"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"
	inhibitMethod   = logindInterface + ".Inhibit"
	inhibitWhat     = "sleep"

	// ModeBlock defers suspend indefinitely; requires privilege
	ModeBlock = "block"
	// ModeDelay defers suspend only for logind's InhibitDelayMaxSec window
	ModeDelay = "delay"
)

// Logind holds a sleep inhibitor lock from systemd-logind. The lock is an
// open file descriptor; suspend is deferred while it remains open.
type Logind struct {
	conn *dbus.Conn
	who  string
	why  string
	mode string
	lock *os.File
}

// NewLogind connects to the system bus and prepares an inhibitor with the
// given identity. No lock is taken until Inhibit is called.
func NewLogind(who, why, mode string) (*Logind, error) {
	if mode != ModeBlock && mode != ModeDelay {
		return nil, fmt.Errorf("invalid inhibit mode %q", mode)
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus connect failed: %w", err)
	}
	return &Logind{conn: conn, who: who, why: why, mode: mode}, nil
}

// Inhibit takes the sleep lock. A no-op when the lock is already held.
func (l *Logind) Inhibit() error {
	if l.lock != nil {
		logger.Debug("Sleep lock already held, not taking another")
		return nil
	}

	obj := l.conn.Object(logindDest, logindPath)
	var fd dbus.UnixFD
	if err := obj.Call(inhibitMethod, 0, inhibitWhat, l.who, l.why, l.mode).Store(&fd); err != nil {
		return errors.ErrInhibitCall(err)
	}
	if fd < 0 {
		return errors.ErrInhibitCall(fmt.Errorf("logind returned invalid fd %d", fd))
	}

	l.lock = os.NewFile(uintptr(fd), "sleep-inhibitor")
	logger.WithField("mode", l.mode).Debug("Took sleep inhibitor lock")
	return nil
}

// Release drops the sleep lock by closing its file descriptor
func (l *Logind) Release() error {
	if l.lock == nil {
		return nil
	}
	err := l.lock.Close()
	l.lock = nil
	if err != nil {
		return fmt.Errorf("failed to close sleep lock: %w", err)
	}
	logger.WithField("mode", l.mode).Debug("Released sleep inhibitor lock")
	return nil
}

// Held reports whether the sleep lock is currently held
func (l *Logind) Held() bool {
	return l.lock != nil
}

// Close releases any held lock and closes the bus connection
func (l *Logind) Close() error {
	if err := l.Release(); err != nil {
		logger.WithError(err).Warn("Error releasing sleep lock during close")
	}
	return l.conn.Close()
}
