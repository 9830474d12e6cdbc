package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ericghara/no-doze/internal/logger"
)

// StatusServer exposes a read-only view of the daemon's inhibition state over
// HTTP, intended for loopback use
type StatusServer struct {
	server     *Server
	httpServer *http.Server
	listenAddr string
}

// statusResponse is the JSON body served at /status
type statusResponse struct {
	Held     bool     `json:"held"`
	Refcount int      `json:"refcount"`
	Sessions []string `json:"sessions"`
}

// NewStatusServer creates the status endpoint around a running daemon server
func NewStatusServer(s *Server, listenAddr string) *StatusServer {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/status", s.statusHandler)

	h2s := &http2.Server{}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      h2c.NewHandler(router, h2s),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &StatusServer{
		server:     s,
		httpServer: httpServer,
		listenAddr: listenAddr,
	}
}

// Start serves until Shutdown is called
func (ss *StatusServer) Start() error {
	logger.WithField("address", ss.listenAddr).Info("Starting status endpoint")
	if err := ss.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status endpoint failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the status endpoint
func (ss *StatusServer) Shutdown(ctx context.Context) error {
	return ss.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Held:     s.manager.Held(),
		Refcount: s.manager.Refcount(),
		Sessions: s.manager.Sessions(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.WithError(err).Debug("Failed to write status response")
	}
}
