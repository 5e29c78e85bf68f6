package api

import (
	"context"
	"net/http"

	"github.com/daehyeonmun2021/react-native-godot/internal/engine"
	"github.com/daehyeonmun2021/react-native-godot/internal/model"
)

const defaultInstanceListLimit = 20

// createInstanceRequest is the JSON body for POST /v1/instance.
type createInstanceRequest struct {
	Driver string   `json:"driver"`
	Args   []string `json:"args"`
}

// createInstanceResponse reports the live instance and whether this request
// created it.
type createInstanceResponse struct {
	Created bool          `json:"created"`
	Status  engine.Status `json:"status"`
}

func (s *Server) handleGetInstance(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.Status())
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	_, created, err := s.host.CreateInstance(r.Context(), req.Driver, req.Args)
	if err != nil {
		s.writeEngineError(w, "create instance", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, createInstanceResponse{Created: created, Status: s.host.Status()})
}

func (s *Server) handleDestroyInstance(w http.ResponseWriter, r *http.Request) {
	if err := s.host.DestroyInstance(r.Context()); err != nil {
		s.writeEngineError(w, "destroy instance", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.host.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.host.Pause()
	s.writeJSON(w, http.StatusOK, s.host.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.host.Resume()
	s.writeJSON(w, http.StatusOK, s.host.Status())
}

// handleLifecycle returns a handler forwarding a focus or app lifecycle
// event to the host.
func (s *Server) handleLifecycle(op string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.writeEngineError(w, op, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, s.host.Status())
	}
}

func (s *Server) handleCrash(w http.ResponseWriter, r *http.Request) {
	if !s.enableCrash {
		s.writeError(w, http.StatusNotFound, "crash endpoint disabled")
		return
	}
	s.logger.Warn("crash requested", "remote_addr", r.RemoteAddr)
	if err := s.host.Crash(r.Context()); err != nil {
		s.writeEngineError(w, "crash", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "crashing"})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultInstanceListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultInstanceListLimit
	}

	instances, err := s.store.ListInstances(r.Context(), limit)
	if err != nil {
		s.logger.Error("list instances", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}
	if instances == nil {
		instances = []*model.Instance{}
	}
	s.writeJSON(w, http.StatusOK, instances)
}
