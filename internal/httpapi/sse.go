package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sublingo/sublingo/internal/notify"
	"github.com/sublingo/sublingo/pkg/log"
)

const sseHeartbeat = 30 * time.Second

// handleEventStream pushes hub events (translation progress, active request
// count) to the client as server-sent events until it disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := s.hub.Subscribe(64)
	defer unsubscribe()

	// Snapshot so the client does not wait for the next transition to learn
	// the current active count.
	if count, err := s.ledger.ActiveCount(r.Context()); err == nil {
		writeEvent(w, notify.Event{
			Topic:   notify.TopicActiveCount,
			Payload: notify.ActiveCountEvent{ActiveRequestCount: count},
		})
		flusher.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event notify.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warn("Failed to encode event on topic %s: %v", event.Topic, err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
