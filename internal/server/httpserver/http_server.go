// Package httpserver serves the registrydash HTTP API.
package httpserver

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/server/handlers"
	smw "git.home.luguber.info/inful/registrydash/internal/server/middleware"
)

const readHeaderTimeout = 10 * time.Second

// Server manages the API listener.
type Server struct {
	addr    string
	log     *slog.Logger
	handler http.Handler
	srv     *http.Server
	bound   string
}

// New wires routes for dash. addr is a listen address such as ":8080".
func New(addr string, dash handlers.Dashboard, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{addr: addr, log: log}

	resources := handlers.NewResourceHandlers(dash, log)
	monitoring := handlers.NewMonitoringHandlers(dash, time.Now(), log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", monitoring.HandleHealthCheck)
	mux.HandleFunc("GET /api/v1/resources", resources.HandleList)
	mux.HandleFunc("GET /api/v1/resources/{name}", resources.HandleGet)
	mux.HandleFunc("POST /api/v1/resources/{name}/refresh", resources.HandleRefresh)
	mux.HandleFunc("GET /api/v1/events", resources.HandleEvents)
	mux.HandleFunc("GET /api/v1/history", resources.HandleHistory)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	s.handler = smw.Chain(log, errors.NewHTTPErrorAdapter(log))(mux)
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background. Binding
// errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to bind HTTP listener").
			WithContext("address", s.addr).
			Build()
	}
	s.bound = ln.Addr().String()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", logfields.Error(err))
		}
	}()
	s.log.Info("HTTP server started", slog.String("address", s.bound))
	return nil
}

// Addr returns the bound address after Start, or the configured one before.
func (s *Server) Addr() string {
	if s.bound != "" {
		return s.bound
	}
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "HTTP server shutdown failed").Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}
