package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/protocol"
)

// fakeCondition is a controllable condition for driving the aggregator
type fakeCondition struct {
	name   string
	period time.Duration

	mu    sync.Mutex
	value bool
	err   error
}

func (f *fakeCondition) Name() string          { return f.name }
func (f *fakeCondition) Period() time.Duration { return f.period }

func (f *fakeCondition) Check(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *fakeCondition) set(value bool, err error) {
	f.mu.Lock()
	f.value = value
	f.err = err
	f.mu.Unlock()
}

// gatedCondition blocks inside Check until released, for holding a check in
// flight across other operations
type gatedCondition struct {
	name    string
	period  time.Duration
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCondition) Name() string          { return g.name }
func (g *gatedCondition) Period() time.Duration { return g.period }

func (g *gatedCondition) Check(ctx context.Context) (bool, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return false, nil
}

// fakePeer is the daemon side of one pipe connection
type fakePeer struct {
	conn net.Conn
	enc  *protocol.Encoder
	msgs chan protocol.Message
}

func newFakePeer(conn net.Conn) *fakePeer {
	p := &fakePeer{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		msgs: make(chan protocol.Message, 16),
	}
	go func() {
		dec := protocol.NewDecoder(conn)
		for {
			msg, err := dec.Decode()
			if err != nil {
				close(p.msgs)
				return
			}
			p.msgs <- msg
		}
	}()
	return p
}

// expect reads messages until one of the wanted type arrives, acking inhibit
// messages along the way
func (p *fakePeer) expect(t *testing.T, want protocol.Type) protocol.Message {
	t.Helper()
	for {
		select {
		case msg, ok := <-p.msgs:
			if !ok {
				t.Fatalf("connection closed while awaiting %s", want)
			}
			if msg.Type == protocol.TypeInhibit {
				p.enc.Encode(protocol.NewAck(msg.Seq))
			}
			if msg.Type == want {
				return msg
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out awaiting %s", want)
		}
	}
}

// expectInhibit reads inhibit messages until one carrying the wanted
// aggregate value arrives, returning it. Robust to whether the initial
// report already reflects the first check results.
func (p *fakePeer) expectInhibit(t *testing.T, want bool) protocol.Message {
	t.Helper()
	for {
		msg := p.expect(t, protocol.TypeInhibit)
		if msg.Inhibit == want {
			return msg
		}
	}
}

// expectNoInhibit asserts no inhibit message arrives within the window
func (p *fakePeer) expectNoInhibit(t *testing.T, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case msg, ok := <-p.msgs:
			if !ok {
				return
			}
			if msg.Type == protocol.TypeInhibit {
				t.Fatalf("unexpected inhibit message: seq=%d inhibit=%v", msg.Seq, msg.Inhibit)
			}
		case <-deadline:
			return
		}
	}
}

// handshake validates the hello and acks it
func (p *fakePeer) handshake(t *testing.T) string {
	t.Helper()
	msg := p.expect(t, protocol.TypeHello)
	if msg.Session == "" {
		t.Fatal("hello missing session id")
	}
	if err := p.enc.Encode(protocol.NewAck(0)); err != nil {
		t.Fatalf("failed to ack hello: %v", err)
	}
	return msg.Session
}

func testClientConfig() *config.ClientConfig {
	return &config.ClientConfig{
		SocketPath:   "unused",
		CheckTimeout: time.Second,
		Reconnect:    10 * time.Millisecond,
		FailurePolicy: config.FailurePolicy{
			RetryDelay:  10 * time.Millisecond,
			MaxFailures: 3,
		},
	}
}

// startAggregator runs an aggregator whose dialer hands the daemon side of
// each connection to the returned channel
func startAggregator(t *testing.T, cfg *config.ClientConfig, conds []condition.Condition) (*Aggregator, chan net.Conn) {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create aggregator: %v", err)
	}
	a.setConditions(conds)

	conns := make(chan net.Conn, 4)
	a.dialer = func() (net.Conn, error) {
		client, server := net.Pipe()
		conns <- server
		return client, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a, conns
}

func acceptPeer(t *testing.T, conns chan net.Conn) *fakePeer {
	t.Helper()
	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return newFakePeer(conn)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out awaiting connection")
		return nil
	}
}

func TestAggregatorReportsInhibitionEdge(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: 20 * time.Millisecond}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)

	// the initial report carries the current aggregate
	peer.expectInhibit(t, false)

	fake.set(true, nil)
	peer.expectInhibit(t, true)

	fake.set(false, nil)
	peer.expectInhibit(t, false)
}

func TestAggregatorSuppressesDuplicateReports(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: 10 * time.Millisecond, value: true}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)

	peer.expectInhibit(t, true)

	// repeated true checks must not produce further traffic
	peer.expectNoInhibit(t, 100*time.Millisecond)
}

func TestAggregatorSequenceIncreases(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: 10 * time.Millisecond}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)

	first := peer.expectInhibit(t, false)
	fake.set(true, nil)
	second := peer.expectInhibit(t, true)
	if second.Seq <= first.Seq {
		t.Errorf("expected strictly increasing seq, got %d then %d", first.Seq, second.Seq)
	}
}

func TestAggregatorORsConditions(t *testing.T) {
	a := &fakeCondition{name: "a", period: 10 * time.Millisecond, value: true}
	b := &fakeCondition{name: "b", period: 10 * time.Millisecond, value: true}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{a, b})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expectInhibit(t, true)

	// one condition clearing must not release while the other holds
	a.set(false, nil)
	peer.expectNoInhibit(t, 100*time.Millisecond)

	b.set(false, nil)
	peer.expectInhibit(t, false)
}

func TestAggregatorAnswersPings(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: time.Hour}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expect(t, protocol.TypeInhibit)

	if err := peer.enc.Encode(protocol.NewPing(7)); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}
	msg := peer.expect(t, protocol.TypePong)
	if msg.Seq != 7 {
		t.Errorf("expected pong echoing seq 7, got %d", msg.Seq)
	}
}

func TestAggregatorReconnectsAndResendsAggregate(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: 10 * time.Millisecond, value: true}
	aggregator, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	session := peer.handshake(t)
	if session != aggregator.Session() {
		t.Errorf("expected session %s, got %s", aggregator.Session(), session)
	}
	lastSeq := peer.expectInhibit(t, true).Seq

	peer.conn.Close()

	reconnected := acceptPeer(t, conns)
	if got := reconnected.handshake(t); got != session {
		t.Errorf("expected same session id after reconnect, got %s", got)
	}
	msg := reconnected.expectInhibit(t, true)
	if msg.Seq <= lastSeq {
		t.Errorf("expected fresh seq above %d after reconnect, got %d", lastSeq, msg.Seq)
	}
}

func TestAggregatorDropsDisabledCondition(t *testing.T) {
	cfg := testClientConfig()
	cfg.FailurePolicy.MaxFailures = 2
	fake := &fakeCondition{name: "fake", period: 10 * time.Millisecond, value: true}
	_, conns := startAggregator(t, cfg, []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expectInhibit(t, true)

	// the condition starts failing; once disabled its contribution drops
	fake.set(true, context.DeadlineExceeded)
	peer.expectInhibit(t, false)
}

func TestAggregatorPrepareSleepTriggersLastChanceCheck(t *testing.T) {
	// a long period ensures no scheduled check can explain the report
	fake := &fakeCondition{name: "fake", period: time.Hour}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expectInhibit(t, false)

	fake.set(true, nil)
	if err := peer.enc.Encode(protocol.NewPrepareSleep()); err != nil {
		t.Fatalf("failed to send prepare-sleep: %v", err)
	}

	peer.expectInhibit(t, true)
}

func TestAggregatorResumeRefreshesState(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: time.Hour, value: true}
	_, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expectInhibit(t, true)

	fake.set(false, nil)
	if err := peer.enc.Encode(protocol.NewResume()); err != nil {
		t.Fatalf("failed to send resume: %v", err)
	}

	peer.expectInhibit(t, false)
}

func TestAggregatorReconfigureSwapsConditions(t *testing.T) {
	fake := &fakeCondition{name: "fake", period: 10 * time.Millisecond, value: true}
	aggregator, conns := startAggregator(t, testClientConfig(), []condition.Condition{fake})

	peer := acceptPeer(t, conns)
	peer.handshake(t)
	peer.expectInhibit(t, true)

	// swapping to an empty condition set clears the aggregate
	if err := aggregator.Reconfigure(&config.ClientConfig{}); err != nil {
		t.Fatalf("failed to reconfigure: %v", err)
	}
	peer.expectInhibit(t, false)
}

func TestReconfigureDuringCheckKeepsSingleScheduleEntry(t *testing.T) {
	gated := &gatedCondition{
		name:    "active-process/ffmpeg",
		period:  time.Hour,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	aggregator, conns := startAggregator(t, testClientConfig(), []condition.Condition{gated})

	peer := acceptPeer(t, conns)
	peer.handshake(t)

	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out awaiting in-flight check")
	}

	// reload to a same-named condition while the old check is still running
	err := aggregator.Reconfigure(&config.ClientConfig{
		Processes: []config.ProcessCondition{{Name: "ffmpeg", Period: time.Hour}},
	})
	if err != nil {
		t.Fatalf("failed to reconfigure: %v", err)
	}
	close(gated.release)

	// the superseded check's completion must not add a second entry; that
	// would double the poll rate from here on
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && aggregator.sched.Len() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if n := aggregator.sched.Len(); n != 1 {
		t.Errorf("expected 1 scheduled entry after reload, got %d", n)
	}
}

func TestSessionStateAggregation(t *testing.T) {
	state := NewSessionState()
	if state.WantsInhibit() {
		t.Error("expected empty state to want no inhibition")
	}

	if _, changed := state.Set("a", false); changed {
		t.Error("expected no edge when setting false on empty state")
	}
	if agg, changed := state.Set("b", true); !agg || !changed {
		t.Error("expected edge to true")
	}
	if _, changed := state.Set("b", true); changed {
		t.Error("expected no edge on repeated true")
	}
	if agg, changed := state.Set("a", true); !agg || changed {
		t.Error("expected no edge when aggregate already true")
	}
	if _, changed := state.Remove("a"); changed {
		t.Error("expected no edge while another condition holds")
	}
	if agg, changed := state.Remove("b"); agg || !changed {
		t.Error("expected edge to false when last contributor removed")
	}
}
