// Package metrics implements metrics server.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus registry over HTTP.
type Server struct {
	listenAddr string
	path       string

	ln     net.Listener
	server *http.Server
}

// NewServer creates a metrics server for the given listen address.
func NewServer(listenAddr, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		listenAddr: listenAddr,
		path:       path,
	}
}

// Start binds the listen address and serves the scrape endpoint in the
// background. Binding happens here, not in the serving goroutine, so a
// busy port fails daemon startup instead of logging asynchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.listenAddr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("metrics endpoint up", "addr", ln.Addr().String(), "path", s.path)

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address. Differs from the configured one when
// the listen address requested an ephemeral port.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.listenAddr
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("metrics server stopped")
	return nil
}
