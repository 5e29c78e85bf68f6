package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// registerWindowRequest is the JSON body for PUT /v1/windows/{name}.
type registerWindowRequest struct {
	Handle string `json:"handle"`
}

// windowTaskResponse reports the engine-thread task behind a window call.
type windowTaskResponse struct {
	TaskID string `json:"task_id"`
	Window string `json:"window"`
	Status string `json:"status"`
}

func (s *Server) handleListWindows(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.Windows())
}

func (s *Server) handleRegisterWindow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req registerWindowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Handle == "" {
		s.writeError(w, http.StatusBadRequest, "handle is required")
		return
	}

	if err := s.host.RegisterWindow(r.Context(), name, req.Handle, nil); err != nil {
		s.writeEngineError(w, "register window", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.host.Windows())
}

func (s *Server) handleUnregisterWindow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	handle := r.URL.Query().Get("handle")
	if handle == "" {
		s.writeError(w, http.StatusBadRequest, "handle query parameter is required")
		return
	}

	bound := false
	for _, v := range s.host.Windows() {
		if v.Handle == handle && v.Name == name {
			bound = true
			break
		}
	}
	if !bound || !s.host.UnregisterWindow(handle) {
		s.writeError(w, http.StatusNotFound, "window view not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.host.OpenWindow(r.Context(), name)
	if err != nil {
		s.writeEngineError(w, "open window", err)
		return
	}
	s.writeJSON(w, http.StatusOK, windowTaskResponse{TaskID: id, Window: name, Status: s.host.LastWindowStatus()})
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.host.CloseWindow(r.Context(), name)
	if err != nil {
		s.writeEngineError(w, "close window", err)
		return
	}
	s.writeJSON(w, http.StatusOK, windowTaskResponse{TaskID: id, Window: name, Status: s.host.LastWindowStatus()})
}

func (s *Server) handleUpdateWindow(w http.ResponseWriter, r *http.Request) {
	if err := s.host.UpdateWindow(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeEngineError(w, "update window", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateWindows(w http.ResponseWriter, r *http.Request) {
	if err := s.host.UpdateWindows(r.Context()); err != nil {
		s.writeEngineError(w, "update windows", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
