// Package client implements the per-user side of no-doze: scheduled condition
// checks aggregated into a single inhibition intent, reported to the daemon
// over the unix socket whenever the aggregate changes.
package client

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/errors"
	"github.com/ericghara/no-doze/internal/logger"
	"github.com/ericghara/no-doze/internal/protocol"
	"github.com/ericghara/no-doze/internal/schedule"
)

// lastChanceBudget bounds the pre-suspend check pass. It must fit inside the
// daemon's grace window or the results arrive after the decision is made.
const lastChanceBudget = 400 * time.Millisecond

// managedRunner serializes access to a runner between the scheduled dispatch
// and unscheduled check passes
type managedRunner struct {
	mu sync.Mutex
	r  *condition.Runner
}

// Aggregator owns the condition schedule and the daemon connection for one
// user session
type Aggregator struct {
	cfg     *config.ClientConfig
	session string
	state   *SessionState
	sched   *schedule.Scheduler

	mu      sync.Mutex
	runners map[string]*managedRunner

	seq    atomic.Uint64
	events chan struct{}

	// dialer is swappable for tests
	dialer func() (net.Conn, error)
}

// New creates an aggregator from the client configuration. The condition set
// is built up front; a configuration enabling no conditions is allowed but
// useless and logged as such.
func New(cfg *config.ClientConfig) (*Aggregator, error) {
	conditions, err := condition.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if len(conditions) == 0 {
		logger.Warn("No inhibiting conditions enabled, sleep will never be inhibited")
	}

	a := &Aggregator{
		cfg:     cfg,
		session: uuid.NewString(),
		state:   NewSessionState(),
		sched:   schedule.NewScheduler(),
		runners: make(map[string]*managedRunner),
		events:  make(chan struct{}, 1),
	}
	a.dialer = func() (net.Conn, error) {
		return net.Dial("unix", cfg.SocketPath)
	}
	a.setConditions(conditions)
	return a, nil
}

// Session returns the session identifier sent in the hello
func (a *Aggregator) Session() string {
	return a.session
}

// Run executes the aggregator until the context is cancelled: the scheduler,
// the check dispatch loop and the daemon connection loop.
func (a *Aggregator) Run(ctx context.Context) error {
	if a.cfg.StartupDelay > 0 {
		logger.WithField("delay", a.cfg.StartupDelay).Info("Delaying first checks")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.StartupDelay):
		}
	}

	go a.sched.Run(ctx)
	go a.dispatch(ctx)
	a.scheduleAll(time.Now())

	return a.connLoop(ctx)
}

// setConditions replaces the runner set. Callers are responsible for
// rescheduling.
func (a *Aggregator) setConditions(conditions []condition.Condition) {
	runners := make(map[string]*managedRunner, len(conditions))
	for _, c := range conditions {
		runners[c.Name()] = &managedRunner{
			r: condition.NewRunner(c, a.cfg.FailurePolicy, a.cfg.CheckTimeout),
		}
	}
	a.mu.Lock()
	a.runners = runners
	a.mu.Unlock()
}

// scheduleAll registers every runner for a check at the given time
func (a *Aggregator) scheduleAll(at time.Time) {
	for name := range a.snapshotRunners() {
		a.sched.Schedule(name, at)
	}
}

func (a *Aggregator) snapshotRunners() map[string]*managedRunner {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make(map[string]*managedRunner, len(a.runners))
	for name, mr := range a.runners {
		snapshot[name] = mr
	}
	return snapshot
}

func (a *Aggregator) runner(name string) *managedRunner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runners[name]
}

// dispatch consumes due entries and executes each check on its own goroutine.
// A runner is rescheduled only after its check completes, so at most one
// scheduled check per condition is in flight.
func (a *Aggregator) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-a.sched.Due():
			mr := a.runner(entry.Name)
			if mr == nil {
				// condition dropped by a config reload after scheduling
				continue
			}
			go a.execute(ctx, entry.Name, mr)
		}
	}
}

// execute runs one scheduled check, folds the result into the aggregate and
// reschedules per the runner's verdict
func (a *Aggregator) execute(ctx context.Context, name string, mr *managedRunner) {
	mr.mu.Lock()
	res := mr.r.Run(ctx)
	mr.mu.Unlock()

	if a.runner(name) != mr {
		// replaced or dropped by a config reload while the check ran; the
		// reload rescheduled the new runner set, a second entry here would
		// double the poll rate
		return
	}

	if res.Disabled {
		if _, changed := a.state.Remove(name); changed {
			a.notify()
		}
		return
	}
	if res.Err == nil {
		if _, changed := a.state.Set(name, res.Value); changed {
			a.notify()
		}
	}
	// on a check error the last known value stands until retry
	a.sched.Schedule(name, time.Now().Add(res.Next))
}

// checkPass runs one unscheduled check of every idle runner within the given
// budget. Results update the aggregate but never the schedule or the failure
// accounting.
func (a *Aggregator) checkPass(ctx context.Context, budget time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var wg sync.WaitGroup
	for name, mr := range a.snapshotRunners() {
		if !mr.mu.TryLock() {
			// a scheduled check is in flight, its result is fresh enough
			continue
		}
		wg.Add(1)
		go func(name string, mr *managedRunner) {
			defer wg.Done()
			defer mr.mu.Unlock()
			res := mr.r.Probe(ctx)
			if res.Err != nil || res.Disabled {
				return
			}
			if _, changed := a.state.Set(name, res.Value); changed {
				a.notify()
			}
		}(name, mr)
	}
	wg.Wait()
}

// notify nudges the send loop. Non-blocking; edges are coalesced and the send
// loop reads the current aggregate.
func (a *Aggregator) notify() {
	select {
	case a.events <- struct{}{}:
	default:
	}
}

func (a *Aggregator) nextSeq() uint64 {
	return a.seq.Add(1)
}

// connLoop dials the daemon and runs the session, reconnecting with capped
// backoff for as long as the context lives
func (a *Aggregator) connLoop(ctx context.Context) error {
	delay := a.cfg.Reconnect
	for {
		conn, err := a.dialer()
		if err != nil {
			logger.WithError(err).WithField("retry_in", delay).
				Warn("Failed to connect to daemon")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > config.MaxReconnectDelay {
				delay = config.MaxReconnectDelay
			}
			continue
		}

		delay = a.cfg.Reconnect
		err = a.runSession(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithError(err).Warn("Daemon connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.Reconnect):
		}
	}
}

// runSession performs the hello handshake and then forwards aggregate edges
// until the connection dies. The current aggregate is always re-sent with a
// fresh sequence number after a (re)connect; the daemon deduplicates.
func (a *Aggregator) runSession(ctx context.Context, conn net.Conn) error {
	enc := protocol.NewEncoder(conn)
	dec := protocol.NewDecoder(conn)

	uid := uint32(os.Getuid())
	if err := enc.Encode(protocol.NewHello(a.session, uid, os.Getpid())); err != nil {
		return err
	}
	msg, err := dec.Decode()
	if err != nil {
		return err
	}
	if msg.Type != protocol.TypeAck {
		return protocolErr(msg)
	}
	logger.WithSession(a.session).Info("Connected to daemon")

	readErr := make(chan error, 1)
	go func() {
		readErr <- a.readLoop(ctx, enc, dec)
	}()

	lastSent := a.state.WantsInhibit()
	if err := enc.Encode(protocol.NewInhibit(a.nextSeq(), lastSent)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-a.events:
			want := a.state.WantsInhibit()
			if want == lastSent {
				continue
			}
			seq := a.nextSeq()
			logger.WithSession(a.session).WithFields(logrus.Fields{
				"seq":     seq,
				"inhibit": want,
			}).Info("Reporting inhibition change")
			if err := enc.Encode(protocol.NewInhibit(seq, want)); err != nil {
				return err
			}
			lastSent = want
		}
	}
}

// readLoop services daemon-initiated traffic: liveness pings, sleep
// transition events and error reports
func (a *Aggregator) readLoop(ctx context.Context, enc *protocol.Encoder, dec *protocol.Decoder) error {
	for {
		msg, err := dec.Decode()
		if err != nil {
			return err
		}

		switch msg.Type {
		case protocol.TypePing:
			if err := enc.Encode(protocol.NewPong(msg.Seq)); err != nil {
				return err
			}
		case protocol.TypePrepareSleep:
			logger.Info("Suspend imminent, running last-chance checks")
			go a.checkPass(ctx, lastChanceBudget)
		case protocol.TypeResume:
			logger.Info("System resumed, refreshing condition state")
			go a.checkPass(ctx, a.cfg.CheckTimeout)
		case protocol.TypeError:
			logger.WithFields(logrus.Fields{
				"kind":   msg.Kind,
				"detail": msg.Detail,
			}).Warn("Daemon reported an error")
		case protocol.TypeAck:
			logger.WithField("seq", msg.Seq).Debug("Inhibit request acknowledged")
		default:
			logger.WithField("type", msg.Type).Debug("Ignoring unexpected message")
		}
	}
}

func protocolErr(msg protocol.Message) error {
	if msg.Type == protocol.TypeError {
		return errors.ErrUnexpectedMessage(string(msg.Type) + ": " + msg.Detail)
	}
	return errors.ErrUnexpectedMessage(string(msg.Type))
}
