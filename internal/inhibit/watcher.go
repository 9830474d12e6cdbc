package inhibit

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/ericghara/no-doze/internal/logger"
)

const prepareForSleepMember = "PrepareForSleep"

// Watcher reacts to the system's pre-suspend notification. While awake it
// holds a delay-mode lock so logind waits for the before-sleep callback (the
// OS proceeds after its own grace window regardless); the lock is released
// once the callback returns and re-taken on resume.
type Watcher struct {
	delay       Inhibitor
	signals     <-chan bool
	beforeSleep func()
	onResume    func()
}

// NewWatcher creates a watcher over a stream of PrepareForSleep values: true
// means suspend is imminent, false means the system just woke. Callbacks may
// be nil.
func NewWatcher(delay Inhibitor, signals <-chan bool, beforeSleep, onResume func()) *Watcher {
	return &Watcher{
		delay:       delay,
		signals:     signals,
		beforeSleep: beforeSleep,
		onResume:    onResume,
	}
}

// Run watches for sleep transitions until the context is cancelled. The
// delay lock is held on entry and released on return.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.delay.Inhibit(); err != nil {
		logger.WithError(err).Error("Failed to take sleep-delay lock, last-chance checks disabled")
	}
	defer func() {
		if err := w.delay.Release(); err != nil {
			logger.WithError(err).Warn("Error releasing sleep-delay lock")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sleeping, ok := <-w.signals:
			if !ok {
				logger.Warn("Sleep signal stream closed")
				return
			}
			if sleeping {
				logger.Debug("Caught PrepareForSleep, running before-sleep callback")
				if w.beforeSleep != nil {
					w.beforeSleep()
				}
				if err := w.delay.Release(); err != nil {
					logger.WithError(err).Warn("Error releasing sleep-delay lock before suspend")
				}
			} else {
				logger.Debug("System resumed, re-taking sleep-delay lock")
				if err := w.delay.Inhibit(); err != nil {
					logger.WithError(err).Error("Failed to re-take sleep-delay lock after resume")
				}
				if w.onResume != nil {
					w.onResume()
				}
			}
		}
	}
}

// SubscribePrepareForSleep subscribes to logind's PrepareForSleep signal on
// the system bus and adapts it to a boolean stream for a Watcher
func SubscribePrepareForSleep(ctx context.Context) (<-chan bool, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus connect failed: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(prepareForSleepMember),
		dbus.WithMatchObjectPath(logindPath),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", prepareForSleepMember, err)
	}

	raw := make(chan *dbus.Signal, 8)
	conn.Signal(raw)

	out := make(chan bool, 1)
	go func() {
		defer conn.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				if len(sig.Body) < 1 {
					continue
				}
				sleeping, ok := sig.Body[0].(bool)
				if !ok {
					continue
				}
				select {
				case out <- sleeping:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
