// internal/httpserver/server.go
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetwatch/monitor/internal/config"
	"github.com/fleetwatch/monitor/internal/httpserver/deps"
	"github.com/fleetwatch/monitor/internal/httpserver/mw"
	"github.com/fleetwatch/monitor/internal/httpserver/routes"
	"github.com/fleetwatch/monitor/internal/logger"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http     *http.Server
	logger   logger.Logger
	started  time.Time
	certFile string
	keyFile  string
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	r := chi.NewRouter()

	// --- Global middlewares (safe defaults)
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID) // reads/assigns X-Request-Id
	r.Use(middleware.Recoverer) // never crash the process on panic
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(mw.Log(loggerClient))
	r.Use(mw.CORS(d.CORSOrigins))
	r.Use(mw.Metrics(d.Metrics))
	if len(d.AllowedHosts) > 0 {
		r.Use(mw.EnforceHost(d.AllowedHosts, loggerClient))
	}

	routes.RegisterAll(r, d)

	s := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:     s,
		logger:   loggerClient,
		started:  d.StartTime,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
	}
}

// Start runs the HTTP server (blocks until error or shutdown). When both
// a TLS cert and key are configured, it serves HTTPS; otherwise it falls
// back to plain HTTP with a warning (spec.md §6).
func (s *Server) Start() error {
	var err error
	if s.certFile != "" && s.keyFile != "" {
		s.logger.Infof("HTTPS server listening on %s", s.http.Addr)
		err = s.http.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		s.logger.Warn("TLS cert/key not configured, serving plain HTTP")
		s.logger.Infof("HTTP server listening on %s", s.http.Addr)
		err = s.http.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	return s.http.Shutdown(ctx)
}
