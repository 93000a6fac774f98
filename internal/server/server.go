// Package server exposes the editor over HTTP: a REST API for element CRUD,
// toolbar actions and templates, and a websocket channel that runs actions
// and streams the change log.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/autosave"
	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/format"
	"github.com/livetemplate/pagecraft/internal/importer"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Options are the server's collaborators. Importer, Saver and Schemas are
// optional. Coordinator enables the websocket editor envelopes; Styles and
// Nodes back them with a preview page when set.
type Options struct {
	Config      *config.Config
	Store       *document.MemoryStore
	Engine      *elements.Engine
	Dispatcher  *toolbar.Dispatcher
	Importer    *importer.Importer
	Saver       *autosave.Saver
	Schemas     SchemaLoader
	Coordinator *format.Coordinator
	Styles      capability.StyleApplier
	Nodes       NodeSource
	Logger      *zap.Logger
}

// Server is the pagecraft HTTP server.
type Server struct {
	cfg     *config.Config
	schemas SchemaLoader
	logger  *zap.Logger

	api     *APIHandler
	socket  *ActionSocket
	watcher *SchemaWatcher
	handler http.Handler

	stopLimiter context.CancelFunc
	limiterDone <-chan struct{}
}

// New creates a server. Call Close to release it.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Engine == nil || opts.Dispatcher == nil {
		return nil, errors.New("server: store, engine and dispatcher are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		schemas: opts.Schemas,
		logger:  logger.Named("server"),
		api:     NewAPIHandler(opts.Store, opts.Engine, opts.Dispatcher, opts.Importer, opts.Saver, logger),
		socket:  NewActionSocket(opts.Store, opts.Dispatcher, cfg.API.GetCORSOrigins(), logger),
	}
	if opts.Coordinator != nil {
		s.socket.editors = NewEditorBinder(opts.Coordinator, opts.Store, opts.Styles, opts.Nodes, logger)
	}

	limiterCtx, cancel := context.WithCancel(context.Background())
	rateLimit, done := RateLimitMiddleware(limiterCtx, cfg.API.GetRateLimitRPS(), cfg.API.GetRateLimitBurst(), cfg.API.GetMaxTrackedIPs(), s.logger)
	s.stopLimiter = cancel
	s.limiterDone = done

	var auth *config.AuthConfig
	if cfg.API != nil {
		auth = cfg.API.Auth
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.socket.Clients()})
	})
	mux.Handle("/ws", Chain(s.socket, AuthMiddleware(auth)))
	if cfg.IsAPIEnabled() {
		mux.Handle("/api/", Chain(s.api,
			SecurityHeadersMiddleware(),
			CORSMiddleware(cfg.API.GetCORSOrigins(), auth.GetHeaderName()),
			rateLimit,
			AuthMiddleware(auth),
			ReadOnlyMiddleware(),
			CompressionMiddleware(),
		))
	}
	s.handler = Chain(mux, LoggingMiddleware(s.logger))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Socket returns the websocket endpoint.
func (s *Server) Socket() *ActionSocket {
	return s.socket
}

// EnableSchemaWatch reloads the configured schema file on change and tells
// clients to reload. It is a no-op unless schemas.watch is set.
func (s *Server) EnableSchemaWatch() error {
	if !s.cfg.Schemas.Watch || s.cfg.Schemas.File == "" || s.schemas == nil {
		return nil
	}
	w, err := NewSchemaWatcher(s.cfg.Schemas.File, s.schemas, s.broadcastReload, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create schema watcher: %w", err)
	}
	s.watcher = w
	s.watcher.Start()
	return nil
}

func (s *Server) broadcastReload(layouts int) {
	data, err := json.Marshal(map[string]any{"type": MessageReload, "layouts": layouts})
	if err != nil {
		return
	}
	s.socket.Broadcast(data)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("api", s.cfg.IsAPIEnabled()),
		zap.Bool("readOnly", config.IsReadOnly()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.socket.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the schema watcher, the rate limiter and the websocket clients.
func (s *Server) Close() error {
	var err error
	if s.watcher != nil {
		err = s.watcher.Stop()
		s.watcher = nil
	}
	s.socket.Close()
	s.stopLimiter()
	<-s.limiterDone
	return err
}
