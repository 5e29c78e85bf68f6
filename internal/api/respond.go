package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/runtime"
)

const maxBodySize = 1 << 20 // 1 MB

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine errors to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	var pe *engine.PanicError
	switch {
	case errors.Is(err, engine.ErrNoInstance), errors.Is(err, engine.ErrWindowHandleTaken):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrEmptyArgs), errors.Is(err, runtime.ErrUnknownDriver):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrRuntimeStart):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoController):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrClosed), errors.Is(err, engine.ErrNotStarted):
		status = http.StatusServiceUnavailable
	case errors.As(err, &pe):
		s.logger.Error("engine task panicked", "op", op, "panic", pe.Value, "stack", string(pe.Stack))
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(op, "error", err)
	}
	s.writeError(w, status, err.Error())
}

// decodeJSON decodes a bounded request body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
