package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crucible/internal/api"
	"crucible/internal/logging"
)

const sseKeepaliveInterval = 15 * time.Second

// handleEvents streams a task's status over server-sent events: first a
// snapshot of the current state, then every subsequent event until the task
// reaches a terminal status or the client goes away.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	taskID := chi.URLParam(r, "id")
	snapshot, ch, cancel, err := s.daemon.broadcaster.Subscribe(taskID)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", api.ConvertTask(snapshot)); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case evt, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, string(evt.Type), evt); err != nil {
				s.logger.Debug("event stream write failed",
					logging.String(logging.FieldTaskID, taskID),
					logging.Error(err))
				return
			}
			flusher.Flush()
			if evt.Terminal {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
