// Package api is the knowledge-graph backend: it receives finalized
// tab payloads from the forwarder and serves the graph to the UI.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tabsense/tabsense/internal/kg"
)

// Server holds the dependencies for the backend HTTP service.
type Server struct {
	graph      *kg.Graph
	router     http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(graph *kg.Graph, logger *slog.Logger) *Server {
	s := &Server{
		graph:  graph,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("backend listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
