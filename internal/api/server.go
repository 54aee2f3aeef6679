// Package api exposes the triage engine over a JSON HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/triagestack/triage-engine/internal/services"
)

// Server hosts the triage API.
type Server struct {
	logger  *slog.Logger
	service *services.TriageService
	httpSrv *http.Server
}

// NewServer constructs the API server bound to address.
func NewServer(logger *slog.Logger, service *services.TriageService, address string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{logger: logger, service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/batches", s.handleRunBatch)
	mux.HandleFunc("POST /api/v1/catalog", s.handleRebuildCatalog)
	mux.HandleFunc("GET /api/v1/tickets/{id}/similar", s.handleSimilarTickets)
	mux.HandleFunc("POST /api/v1/tickets/{id}/vector", s.handleSaveTicketVector)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", slog.String("address", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
