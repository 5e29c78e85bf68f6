package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daehyeonmun2021/react-native-godot/internal/store"
)

// handleStreamLogs streams engine log lines as server-sent events. It follows
// the instance named by the instance query parameter, or the live instance,
// and ends with a done event once that instance is destroyed. Ids that are
// neither live nor journaled are rejected.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	st := s.host.Status()
	id := r.URL.Query().Get("instance")
	switch {
	case id == "" && st.Instance == nil:
		s.writeError(w, http.StatusConflict, "no engine instance")
		return
	case id == "":
		id = st.Instance.ID
	case st.Instance != nil && st.Instance.ID == id:
	default:
		if !s.knownInstance(w, r, id) {
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// A destroyed instance has a closed or evicted topic, so the loop below
	// exits after replaying whatever backlog is left.
	ch, unsub := s.host.Broker().Subscribe(id)
	defer unsub()
	logStreams.Inc()
	defer logStreams.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "instance destroyed")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEData(w, line); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// knownInstance reports whether id is journaled, writing the error response
// when it is not.
func (s *Server) knownInstance(w http.ResponseWriter, r *http.Request, id string) bool {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "instance not found")
		return false
	}
	_, err := s.store.GetInstance(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "instance not found")
		return false
	case err != nil:
		s.logger.Error("look up instance", "instance_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "look up instance")
		return false
	}
	return true
}

// writeSSEData writes a log line as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
