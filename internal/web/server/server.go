// Package server exposes the control API: driver catalog queries, live
// instrument sessions, property access by path, acquisition control, trace
// history, and the websocket event stream.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/acquire"
	"github.com/gometr/gometr/internal/driver/registry"
	"github.com/gometr/gometr/internal/scpi"
	"github.com/gometr/gometr/internal/store"
	"github.com/gometr/gometr/internal/web/auth"
	"github.com/gometr/gometr/internal/web/cache"
	"github.com/gometr/gometr/internal/web/websocket"
)

// SessionOpener dials an instrument resource. Production wiring uses
// scpi.Open; tests substitute scripted transports.
type SessionOpener func(resource string) (*scpi.Session, error)

// Config carries the server's collaborators
type Config struct {
	Registry *registry.Registry
	Cache    cache.Cache   // nil selects an in-memory cache; closed with the server
	Store    *store.Store  // nil disables trace history endpoints
	Auth     *auth.Service // nil disables auth
	Logger   *zap.Logger
	Opener   SessionOpener
	// Interval is the default continuous-acquisition sweep interval
	Interval time.Duration
}

// connection is one live instrument session and its acquisition engine
type connection struct {
	name       string
	resource   string
	instrument *scpi.Instrument
	session    *scpi.Session
	engine     *acquire.Engine
	// unsubscribe tears down the trace-forwarding subscription
	unsubscribe func()
}

// Server is the control API
type Server struct {
	registry *registry.Registry
	cache    cache.Cache
	store    *store.Store
	authSvc  *auth.Service
	hub      *websocket.Hub
	logger   *zap.Logger
	opener   SessionOpener
	interval time.Duration

	mu          sync.RWMutex
	connections map[string]*connection

	router chi.Router
}

// New assembles the server and its routes
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemoryCache()
	}
	authSvc := cfg.Auth
	if authSvc == nil {
		authSvc = auth.NewService("", 0)
	}
	opener := cfg.Opener
	if opener == nil {
		opener = func(resource string) (*scpi.Session, error) {
			return scpi.Open(resource, scpi.WithLogger(logger))
		}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	s := &Server{
		registry:    cfg.Registry,
		cache:       c,
		store:       cfg.Store,
		authSvc:     authSvc,
		hub:         websocket.NewHub(logger),
		logger:      logger,
		opener:      opener,
		interval:    interval,
		connections: make(map[string]*connection),
	}
	s.router = s.routes()
	return s
}

// Hub returns the event stream hub, for wiring external publishers
func (s *Server) Hub() *websocket.Hub { return s.hub }

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/stream", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(s.hub, w, r)
	})

	r.Route("/api/drivers", func(r chi.Router) {
		r.Get("/", s.handleListDrivers)
		r.Get("/{name}", s.handleGetDriver)
		r.Get("/{name}/tree", s.handleGetTree)
	})

	r.Route("/api/instruments", func(r chi.Router) {
		r.Get("/", s.handleListInstruments)
		r.Get("/{name}/properties/{path}", s.handleGetProperty)
		r.Get("/{name}/sources", s.handleGetSources)

		r.Group(func(r chi.Router) {
			r.Use(s.authSvc.Middleware)
			r.Post("/", s.handleConnect)
			r.Delete("/{name}", s.handleDisconnect)
			r.Put("/{name}/properties/{path}", s.handleSetProperty)
			r.Put("/{name}/sources", s.handleSetSources)
			r.Post("/{name}/acquisition/single", s.handleSingle)
			r.Post("/{name}/acquisition/start", s.handleStart)
			r.Post("/{name}/acquisition/stop", s.handleStop)
		})
	})

	r.Route("/api/traces", func(r chi.Router) {
		r.Get("/", s.handleListTraces)
		r.Get("/{id}", s.handleGetTrace)
		r.With(s.authSvc.Middleware).Delete("/{id}", s.handleDeleteTrace)
	})

	return r
}

// Run starts the hub and serves until the context is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return multierr.Append(err, s.Close())
	case err := <-errCh:
		return err
	}
}

// Close stops acquisition, closes every live session, and releases the
// cache backend.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for name, conn := range s.connections {
		conn.engine.Stop()
		conn.unsubscribe()
		err = multierr.Append(err, conn.session.Close())
		delete(s.connections, name)
	}
	if closer, ok := s.cache.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

// connectionFor returns the live connection for an instrument name
func (s *Server) connectionFor(name string) (*connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[name]
	if !ok {
		return nil, fmt.Errorf("instrument %q is not connected", name)
	}
	return conn, nil
}

func (s *Server) connectionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.connections))
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// logRequests is zap-structured request logging
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
