package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"worklane/api/internal/store"
)

// authed issues a real session for the user and performs the request.
func authed(t *testing.T, server *HTTPServer, svc *Service, u store.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("CreateSession for %s: %v", u.ID, err)
	}
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestRoutesRequireAuth(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	server := NewHTTPServer(svc, "*")

	paths := []string{"/api/projects", "/api/summary", "/api/search?q=x", "/api/admin/users"}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rr.Code)
		}
	}
}

func TestViewerCannotCreateProject(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	viewer := seedUser(fs, "usr-1", "Vera", "viewer")
	server := NewHTTPServer(svc, "*")

	rr := authed(t, server, svc, viewer, http.MethodPost, "/api/projects", `{"name":"Nope"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer create project = %d, want 403", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "FORBIDDEN" {
		t.Errorf("code = %v, want FORBIDDEN", payload["code"])
	}
}

func TestWorkerCannotSaveGraph(t *testing.T) {
	fs := newFakeStore()
	svc, snaps := newTestService(fs)
	worker := seedUser(fs, "usr-1", "Sam", "worker")
	project := seedProject(fs, snaps, "proj-1", "Acme")
	fs.memberships[memberKey(project.ID, worker.ID)] = store.Membership{
		ProjectID: project.ID, UserID: worker.ID, Role: "worker", NodeID: "worker",
	}
	server := NewHTTPServer(svc, "*")

	rr := authed(t, server, svc, worker, http.MethodPut, "/api/projects/proj-1/graph", `{"nodes":[],"edges":[]}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("worker graph save = %d, want 403", rr.Code)
	}

	// Reading stays open to every member.
	rr = authed(t, server, svc, worker, http.MethodGet, "/api/projects/proj-1/graph", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("worker graph read = %d, want 200 body=%s", rr.Code, rr.Body.String())
	}
}

func TestMembersRoutes(t *testing.T) {
	fs := newFakeStore()
	svc, snaps := newTestService(fs)
	manager := seedUser(fs, "usr-1", "Avery", "manager")
	worker := seedUser(fs, "usr-2", "Sam", "worker")
	project := seedProject(fs, snaps, "proj-1", "Acme")
	fs.memberships[memberKey(project.ID, manager.ID)] = store.Membership{
		ProjectID: project.ID, UserID: manager.ID, Role: "manager", NodeID: "agency",
	}
	server := NewHTTPServer(svc, "*")

	// Manager binds the worker to the worker node.
	rr := authed(t, server, svc, manager, http.MethodPut, "/api/projects/proj-1/members/usr-2",
		`{"role":"worker","nodeId":"worker"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set member = %d body=%s", rr.Code, rr.Body.String())
	}

	m, err := fs.GetMembership(context.Background(), project.ID, worker.ID)
	if err != nil || m.Role != "worker" || m.NodeID != "worker" {
		t.Fatalf("membership = %+v, err=%v", m, err)
	}

	// A node the graph does not contain is rejected.
	rr = authed(t, server, svc, manager, http.MethodPut, "/api/projects/proj-1/members/usr-2",
		`{"role":"worker","nodeId":"ghost"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown node = %d, want 422", rr.Code)
	}

	rr = authed(t, server, svc, manager, http.MethodPut, "/api/projects/proj-1/members/usr-2",
		`{"role":"overlord"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad role = %d, want 422", rr.Code)
	}

	// Workers cannot manage members.
	rr = authed(t, server, svc, worker, http.MethodPut, "/api/projects/proj-1/members/usr-1",
		`{"role":"viewer"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("worker set member = %d, want 403", rr.Code)
	}

	// Any member can list.
	rr = authed(t, server, svc, worker, http.MethodGet, "/api/projects/proj-1/members", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list members = %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse members: %v", err)
	}
	members, _ := payload["members"].([]any)
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}
}

func TestAdminRoutes(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	admin := seedUser(fs, "usr-1", "Root", "admin")
	worker := seedUser(fs, "usr-2", "Sam", "worker")
	server := NewHTTPServer(svc, "*")

	rr := authed(t, server, svc, worker, http.MethodGet, "/api/admin/users", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin list users = %d, want 403", rr.Code)
	}

	rr = authed(t, server, svc, admin, http.MethodGet, "/api/admin/users", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin list users = %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse users: %v", err)
	}
	users, _ := payload["users"].([]any)
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}

	rr = authed(t, server, svc, admin, http.MethodPut, "/api/admin/users/usr-2/role", `{"role":"manager"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update role = %d body=%s", rr.Code, rr.Body.String())
	}
	if fs.users["usr-2"].Role != "manager" {
		t.Errorf("role = %s, want manager", fs.users["usr-2"].Role)
	}

	rr = authed(t, server, svc, admin, http.MethodPut, "/api/admin/users/usr-2/role", `{"role":"emperor"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad role = %d, want 422", rr.Code)
	}

	rr = authed(t, server, svc, admin, http.MethodPut, "/api/admin/users/usr-404/role", `{"role":"viewer"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user = %d, want 404", rr.Code)
	}

	// Admins cannot demote themselves.
	rr = authed(t, server, svc, admin, http.MethodPut, "/api/admin/users/usr-1/role", `{"role":"viewer"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("self demote = %d, want 422", rr.Code)
	}
}
