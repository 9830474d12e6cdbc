// Package daemon implements the privileged side of no-doze: a unix-socket
// server accepting one connection per user session, forwarding inhibition
// intent to the lock manager, and broadcasting sleep transitions.
package daemon

import (
	"context"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/errors"
	"github.com/ericghara/no-doze/internal/inhibit"
	"github.com/ericghara/no-doze/internal/logger"
	"github.com/ericghara/no-doze/internal/protocol"
)

// helloTimeout bounds how long a fresh connection may sit without a hello
const helloTimeout = 5 * time.Second

// Server accepts session connections on a group-restricted unix socket
type Server struct {
	cfg     *config.DaemonConfig
	manager *inhibit.Manager

	listener net.Listener

	mu       sync.Mutex
	sessions map[string]*session
	lastSeq  map[string]uint64    // survives disconnects so stale messages stay dead
	parted   map[string]time.Time // disconnect time per retained watermark
	closed   bool

	wg sync.WaitGroup
}

// NewServer creates a server around the given lock manager
func NewServer(cfg *config.DaemonConfig, manager *inhibit.Manager) *Server {
	return &Server{
		cfg:      cfg,
		manager:  manager,
		sessions: make(map[string]*session),
		lastSeq:  make(map[string]uint64),
		parted:   make(map[string]time.Time),
	}
}

// Listen binds the unix socket and restricts it to the configured group.
// A stale socket from a previous run is removed first.
func (s *Server) Listen() error {
	path := s.cfg.SocketPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.ErrSocketListen(path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.ErrSocketListen(path, err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return errors.ErrSocketListen(path, err)
	}

	if err := restrictSocket(path, s.cfg.SocketGroup); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	logger.WithFields(logrus.Fields{
		"path":  path,
		"group": s.cfg.SocketGroup,
	}).Info("Listening on unix socket")
	return nil
}

// Serve accepts connections until the context is cancelled or the listener
// closes. Each session is handled on its own goroutines.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			logger.WithError(err).Warn("Accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Broadcast sends a message to every connected session. Write failures are
// left to each session's liveness handling.
func (s *Server) Broadcast(msg protocol.Message) {
	s.mu.Lock()
	peers := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		peers = append(peers, sess)
	}
	s.mu.Unlock()

	for _, sess := range peers {
		if err := sess.send(msg); err != nil {
			logger.WithSession(sess.id).WithError(err).Debug("Broadcast write failed")
		}
	}
}

// NotifyPrepareSleep broadcasts the pre-suspend event and waits out the grace
// window so clients can complete one last-chance check. With a zero refcount
// and no sessions there is nothing to wait for.
func (s *Server) NotifyPrepareSleep() {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	if n == 0 {
		logger.Debug("Suspend imminent with no connected sessions")
		return
	}

	logger.WithField("sessions", n).Info("Suspend imminent, notifying sessions")
	s.Broadcast(protocol.NewPrepareSleep())
	// bounded: the delay lock only defers suspend briefly, never past the
	// logind delay window
	time.Sleep(s.cfg.GraceWindow)
}

// NotifyResume broadcasts the post-suspend event so clients reset schedules
func (s *Server) NotifyResume() {
	s.Broadcast(protocol.NewResume())
}

// SessionCount returns the number of connected sessions
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Addr returns the listener address, for tests
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown closes the listener and all sessions, then drains the lock
// manager so no system inhibitor outlives the daemon
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
	s.manager.Shutdown()
	os.Remove(s.cfg.SocketPath)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// register adds a session, replacing any half-dead connection with the same
// id left over from before a client reconnect
func (s *Server) register(sess *session) {
	s.mu.Lock()
	prev := s.sessions[sess.id]
	s.sessions[sess.id] = sess
	delete(s.parted, sess.id)
	s.mu.Unlock()

	if prev != nil {
		logger.WithSession(sess.id).Info("Session reconnected, closing stale connection")
		prev.closeConn()
	}
}

// unregister removes a session and drops its inhibition contribution. A
// stale connection replaced by a reconnect must not drop the live session's
// contribution, so the drop only happens when this session still owns the
// registration. The sequence watermark is kept across a reconnect so stale
// messages stay dead, then expired once the client has been gone long enough
// that none can be in flight.
func (s *Server) unregister(sess *session) {
	now := time.Now()
	s.mu.Lock()
	owned := s.sessions[sess.id] == sess
	if owned {
		delete(s.sessions, sess.id)
		s.parted[sess.id] = now
	}
	if s.cfg.SeqExpiry > 0 {
		for id, at := range s.parted {
			if now.Sub(at) >= s.cfg.SeqExpiry && s.sessions[id] == nil {
				delete(s.parted, id)
				delete(s.lastSeq, id)
			}
		}
	}
	s.mu.Unlock()
	if owned {
		s.manager.DropSession(sess.id)
	}
}

// acceptSeq validates and records a session's sequence number. Returns false
// for duplicates and reordered messages.
func (s *Server) acceptSeq(id string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.lastSeq[id] {
		return false
	}
	s.lastSeq[id] = seq
	return true
}

// restrictSocket limits connections to members of the named system group.
// The socket stays usable when the group is missing, but only for root, and
// the condition is logged loudly.
func restrictSocket(path, group string) error {
	if err := os.Chmod(path, config.DefaultSocketPerms); err != nil {
		return errors.ErrSocketPerms(path, err)
	}

	g, err := user.LookupGroup(group)
	if err != nil {
		logger.WithField("group", group).WithError(err).
			Error("Socket group not found, socket restricted to owner only")
		if err := os.Chmod(path, 0o600); err != nil {
			return errors.ErrSocketPerms(path, err)
		}
		return nil
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return errors.ErrSocketPerms(path, err)
	}
	if err := os.Chown(path, -1, gid); err != nil {
		return errors.ErrSocketPerms(path, err)
	}
	return nil
}
