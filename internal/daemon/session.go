package daemon

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ericghara/no-doze/internal/errors"
	"github.com/ericghara/no-doze/internal/logger"
	"github.com/ericghara/no-doze/internal/protocol"
)

// session is one authenticated client connection. The daemon owns the read
// loop and a ping ticker; writes go through the shared encoder.
type session struct {
	id   string
	uid  uint32
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder

	mu      sync.Mutex
	missed  int
	pingSeq uint64
	done    chan struct{}
	closed  bool
}

// handleConn performs the hello handshake, registers the session and runs its
// read loop. All exit paths drop the session's inhibition contribution.
func (s *Server) handleConn(conn net.Conn) {
	sess, err := s.handshake(conn)
	if err != nil {
		logger.WithError(err).Warn("Rejected connection")
		conn.Close()
		return
	}

	s.register(sess)
	log := logger.WithFields(logrus.Fields{"session": sess.id, "uid": sess.uid})
	log.Info("Session established")

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		s.pingLoop(sess)
	}()

	err = s.readLoop(sess)
	sess.close()
	<-pingDone
	s.unregister(sess)
	log.WithError(err).Info("Session closed")
}

// handshake reads and validates the hello. The claimed uid must match the
// socket peer credentials; the client cannot speak for another user.
func (s *Server) handshake(conn net.Conn) (*session, error) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	dec := protocol.NewDecoder(conn)
	msg, err := dec.Decode()
	if err != nil {
		return nil, err
	}
	if msg.Type != protocol.TypeHello {
		return nil, errors.ErrUnexpectedMessage(string(msg.Type))
	}
	if msg.Version != protocol.Version {
		return nil, errors.ErrMalformedMessage(
			fmt.Errorf("unsupported protocol version %d", msg.Version))
	}
	if msg.Session == "" {
		return nil, errors.ErrMalformedMessage(fmt.Errorf("hello missing session id"))
	}

	actualUID, err := peerUID(conn)
	if err != nil {
		logger.WithError(err).Warn("Peer credential check unavailable")
	} else if actualUID != msg.UID {
		return nil, errors.ErrPeerMismatch(msg.UID, actualUID)
	}

	sess := &session{
		id:   msg.Session,
		uid:  msg.UID,
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  dec,
		done: make(chan struct{}),
	}
	if err := sess.send(protocol.NewAck(0)); err != nil {
		return nil, err
	}
	return sess, nil
}

// readLoop processes inhibit and pong messages until the connection dies
func (s *Server) readLoop(sess *session) error {
	for {
		msg, err := sess.dec.Decode()
		if err != nil {
			return err
		}

		switch msg.Type {
		case protocol.TypeInhibit:
			s.handleInhibit(sess, msg)
		case protocol.TypePong:
			sess.pongReceived()
		case protocol.TypeHello:
			// a second hello on an open connection is a client bug
			sess.send(protocol.NewError(protocol.ErrKindProtocol, "session already established"))
			return errors.ErrUnexpectedMessage(string(msg.Type))
		default:
			logger.WithSession(sess.id).WithField("type", msg.Type).
				Debug("Ignoring unexpected message")
		}
	}
}

// handleInhibit applies an inhibition request. Messages with a sequence
// number at or below the session's watermark are duplicates or reordered
// stragglers and acknowledged without effect on the refcount.
func (s *Server) handleInhibit(sess *session, msg protocol.Message) {
	if !s.acceptSeq(sess.id, msg.Seq) {
		logger.WithSession(sess.id).WithFields(logrus.Fields{
			"seq": msg.Seq,
		}).Debug("Discarding stale inhibit message")
		sess.send(protocol.NewAck(msg.Seq))
		return
	}

	logger.WithSession(sess.id).WithFields(logrus.Fields{
		"seq":     msg.Seq,
		"inhibit": msg.Inhibit,
	}).Debug("Inhibit request accepted")
	s.manager.SetIntent(sess.id, msg.Inhibit)
	sess.send(protocol.NewAck(msg.Seq))
}

// pingLoop probes the client periodically. MaxMissed consecutive unanswered
// pings mark the session dead.
func (s *Server) pingLoop(sess *session) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
		}

		if sess.pendingPings() >= s.cfg.MaxMissed {
			logger.WithSession(sess.id).
				WithError(errors.ErrPongTimeout(s.cfg.MaxMissed)).
				Warn("Session unresponsive, closing")
			sess.closeConn()
			return
		}
		if err := sess.send(protocol.NewPing(sess.nextPingSeq())); err != nil {
			sess.closeConn()
			return
		}
	}
}

func (sess *session) send(msg protocol.Message) error {
	return sess.enc.Encode(msg)
}

// pendingPings returns the number of pings sent without an answering pong
func (sess *session) pendingPings() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.missed
}

func (sess *session) pongReceived() {
	sess.mu.Lock()
	sess.missed = 0
	sess.mu.Unlock()
}

// nextPingSeq records one more outstanding ping and returns its sequence
func (sess *session) nextPingSeq() uint64 {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.missed++
	sess.pingSeq++
	return sess.pingSeq
}

// close marks the session finished and closes the connection
func (sess *session) close() {
	sess.mu.Lock()
	if !sess.closed {
		sess.closed = true
		close(sess.done)
	}
	sess.mu.Unlock()
	sess.conn.Close()
}

// closeConn tears down the transport, unblocking the read loop
func (sess *session) closeConn() {
	sess.conn.Close()
}
