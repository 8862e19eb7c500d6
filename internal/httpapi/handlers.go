package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/ledger"
	"github.com/sublingo/sublingo/internal/provider"
	"github.com/sublingo/sublingo/pkg/log"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requests, err := s.ledger.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if requests == nil {
		requests = []*ledger.Request{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleActiveCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.ledger.ActiveCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"activeRequestCount": count})
}

// handleRequestByID serves GET /api/requests/{id} and
// POST /api/requests/{id}/cancel.
func (s *Server) handleRequestByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "request id required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		req, err := s.ledger.Get(r.Context(), id)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, req)

	case action == "cancel" && r.Method == http.MethodPost:
		err := s.ledger.Cancel(r.Context(), id)
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": "cancelling"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": s.registry.Names()})
}

// handleProviderModels serves GET /api/providers/{name}/models. Backends that
// cannot enumerate models report that as a client error, not a failure.
func (s *Server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/providers/")
	name, tail, _ := strings.Cut(rest, "/")
	if name == "" || tail != "models" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	translator, err := s.registry.Get(r.Context(), name)
	if errors.Is(err, provider.ErrUnknownProvider) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var confErr *provider.ConfigError
	if errors.As(err, &confErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lister, ok := translator.(provider.ModelLister)
	if !ok {
		writeError(w, http.StatusBadRequest, "provider "+name+" does not support model discovery")
		return
	}

	models, err := lister.GetModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

// settingsKeys is the surface exposed over GET /api/settings when the caller
// does not name keys explicitly. Per-provider credentials are only returned
// when asked for by key.
var settingsKeys = []string{
	config.KeyServiceType,
	config.KeySourceLanguages,
	config.KeyTargetLanguages,
	config.KeyIgnoreCaptions,
	config.KeyBatchEnabled,
	config.KeyBatchSize,
	config.KeyContextBefore,
	config.KeyContextAfter,
	config.KeyPromptTemplate,
	config.KeyMaxRetries,
	config.KeyRetryBaseDelay,
	config.KeyRetryMultiplier,
	config.KeyRetryMaxDelay,
	config.KeyScanCron,
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys := settingsKeys
		if raw := r.URL.Query().Get("keys"); raw != "" {
			keys = nil
			for _, k := range strings.Split(raw, ",") {
				if trimmed := strings.TrimSpace(k); trimmed != "" {
					keys = append(keys, trimmed)
				}
			}
		}
		writeJSON(w, http.StatusOK, s.settings.GetMany(r.Context(), keys))

	case http.MethodPut, http.MethodPost:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings payload: "+err.Error())
			return
		}
		for key, value := range updates {
			if err := s.settings.Set(r.Context(), key, value); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": len(updates)})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.scan.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.ledger.ActiveCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := map[string]any{"activeRequestCount": count}
	if info, err := s.scan.TriggerInfo(); err == nil {
		status["scan"] = map[string]any{
			"expression":    info.Expression,
			"lastRun":       info.Last,
			"nextRun":       info.Next,
			"timeSinceLast": info.TimeSinceLast.String(),
			"timeUntilNext": info.TimeUntilNext.String(),
		}
	}
	writeJSON(w, http.StatusOK, status)
}
