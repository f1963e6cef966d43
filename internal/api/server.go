package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/bridges/mcu"
	"github.com/nerrad567/edusat-bridge/internal/history"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
	"github.com/nerrad567/edusat-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/edusat-bridge/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StateSource is the store surface the API reads. *state.Store satisfies it.
type StateSource interface {
	GetState() state.State
	Subscribe(fn func()) (unsubscribe func())
}

// BridgeStats reports bridge counters. *mcu.Bridge satisfies it.
type BridgeStats interface {
	Stats() mcu.Stats
}

// JournalStats reports journal counters. *history.Journal satisfies it.
type JournalStats interface {
	Stats() history.JournalStats
}

// Database is the journal database surface. *database.DB satisfies it.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
	SizeBytes() (int64, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Store    StateSource
	BridgeID string
	Version  string

	// Optional.
	Bridge   BridgeStats
	History  history.Repository
	Journal  JournalStats
	Database Database
}

// Server is the HTTP status server.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	store    StateSource
	bridge   BridgeStats
	history  history.Repository
	journal  JournalStats
	db       Database
	bridgeID string
	version  string

	hub       *Hub
	startTime time.Time

	mu          sync.Mutex
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		store:     deps.Store,
		bridge:    deps.Bridge,
		history:   deps.History,
		journal:   deps.Journal,
		db:        deps.Database,
		bridgeID:  deps.BridgeID,
		version:   deps.Version,
		hub:       NewHub(deps.Logger),
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// The listener is bound before Start returns, so a port-in-use error is
// reported here and Port reflects the real port when the config asked for 0.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.unsubscribe = s.relayStateChanges()

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
