package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/qkgalias/capstone-hub/internal/dashboard"
	"github.com/qkgalias/capstone-hub/internal/httputil"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/session"
)

type materialsResponse struct {
	Materials []material.Material `json:"materials"`
	Status    string              `json:"status,omitempty"`
}

type reorderRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Category string `json:"category"`
}

// board opens the caller's board. It writes the error and returns nil when
// there is no session.
func (s *Server) board(w http.ResponseWriter, r *http.Request) *dashboard.Board {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		httputil.WriteServiceError(w, r, session.ErrSessionExpired)
		return nil
	}
	b, err := s.boards.Open(r.Context(), sess)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return nil
	}
	return b
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	if err := b.Refresh(r.Context()); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, materialsResponse{Materials: b.Materials(), Status: b.Status()})
}

func (s *Server) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	var in dashboard.Input
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}

	m, err := b.Add(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

func (s *Server) handleEditMaterial(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	var in dashboard.Input
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}

	if err := b.Edit(r.Context(), mux.Vars(r)["id"], in); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	confirmed := false
	if raw := r.URL.Query().Get("confirm"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.BadRequest(w, "confirm must be a boolean")
			return
		}
		confirmed = v
	}

	if err := b.Delete(r.Context(), mux.Vars(r)["id"], confirmed); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReorder always answers 200 once the drop is applied locally; a
// persistence failure is reported in the status field.
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	var req reorderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		httputil.BadRequest(w, "source_id and target_id are required")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, b.Drop(r.Context(), req.SourceID, req.TargetID, req.Category))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	b := s.board(w, r)
	if b == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b.View(r.Context()))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	c := s.boards.Catalog()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": c.Options(),
		"fallback":   c.Fallback(),
	})
}
