package app

import (
	"net/http"

	"worklane/api/internal/rbac"
)

// Membership and admin routes.

func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	// /api/projects/{id}/members
	if len(parts) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err := s.service.requireProjectAction(r.Context(), projectID, session, rbac.ActionRead); err != nil {
			writeMapped(w, err)
			return
		}
		payload, err := s.service.ListProjectMembers(r.Context(), projectID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	// /api/projects/{id}/members/{userId}
	if len(parts) != 1 || r.Method != http.MethodPut {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err := s.service.requireProjectAction(r.Context(), projectID, session, rbac.ActionPublish); err != nil {
		writeMapped(w, err)
		return
	}

	var body struct {
		Role   string `json:"role"`
		NodeID string `json:"nodeId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	payload, err := s.service.SetProjectMember(r.Context(), projectID, parts[0], body.Role, body.NodeID, session)
	if err != nil {
		writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		s.forbid(w)
		return
	}

	// /api/admin/users
	if len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodGet {
		payload, err := s.service.ListUsers(r.Context())
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	// /api/admin/users/{id}/role
	if len(parts) == 3 && parts[0] == "users" && parts[2] == "role" && r.Method == http.MethodPut {
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateUserRole(r.Context(), parts[1], body.Role, session)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
