// Package httpapi is the service's minimal JSON surface: request listing and
// cancellation, settings, provider model discovery, scan triggering and the
// SSE event stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/ledger"
	"github.com/sublingo/sublingo/internal/notify"
	"github.com/sublingo/sublingo/internal/provider"
	"github.com/sublingo/sublingo/internal/service"
)

type Server struct {
	ledger   *ledger.Ledger
	registry *provider.Registry
	settings *config.Store
	hub      *notify.Hub
	scan     *service.ScanService

	mux    *http.ServeMux
	server *http.Server
}

func NewServer(ledg *ledger.Ledger, registry *provider.Registry, settings *config.Store, hub *notify.Hub, scan *service.ScanService) *Server {
	s := &Server{
		ledger:   ledg,
		registry: registry,
		settings: settings,
		hub:      hub,
		scan:     scan,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/requests", s.handleListRequests)
	s.mux.HandleFunc("/api/requests/active", s.handleActiveCount)
	s.mux.HandleFunc("/api/requests/", s.handleRequestByID)
	s.mux.HandleFunc("/api/events/stream", s.handleEventStream)
	s.mux.HandleFunc("/api/providers", s.handleListProviders)
	s.mux.HandleFunc("/api/providers/", s.handleProviderModels)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/status", s.handleStatus)
}
