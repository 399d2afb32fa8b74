package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"worklane/api/internal/authpw"
)

// fakeAuthStore adds the verification and reset bookkeeping authpw needs on
// top of the shared in-memory store.
type fakeAuthStore struct {
	*fakeStore
	resets    map[string]string
	resetUsed map[string]bool
}

func newFakeAuthStore(fs *fakeStore) *fakeAuthStore {
	return &fakeAuthStore{fakeStore: fs, resets: map[string]string{}, resetUsed: map[string]bool{}}
}

func (f *fakeAuthStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	f.users[userID] = u
	return nil
}

func (f *fakeAuthStore) VerifyUserEmail(_ context.Context, token string) error {
	for id, u := range f.users {
		if u.VerificationToken == token && token != "" {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAuthStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.users[userID] = u
	return nil
}

func (f *fakeAuthStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.resets[token] = userID
	return nil
}

func (f *fakeAuthStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	if f.resetUsed[token] {
		return "", sql.ErrNoRows
	}
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeAuthStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.resetUsed[token] = true
	return nil
}

func newAuthTestServer(t *testing.T) (*HTTPServer, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	svc.SetAuthPassword(authpw.NewService(newFakeAuthStore(fs), "test-secret"))
	return NewHTTPServer(svc, "*"), fs
}

func postJSON(t *testing.T, server *HTTPServer, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	server, _ := newAuthTestServer(t)

	// Sign up. SMTP is not configured, so the verification token comes back.
	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"sam@example.com","password":"hunter2hunter2","displayName":"Sam"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	token, _ := payload["devVerificationToken"].(string)
	if token == "" {
		t.Fatal("expected devVerificationToken without SMTP")
	}

	// Signing in before verification is refused.
	rr = postJSON(t, server, "/api/auth/signin", `{"email":"sam@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified signin status = %d, want 403", rr.Code)
	}

	rr = postJSON(t, server, "/api/auth/verify-email", fmt.Sprintf(`{"token":%q}`, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, server, "/api/auth/signin", `{"email":"sam@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload = decodeJSON(t, rr)
	accessToken, _ := payload["accessToken"].(string)
	refreshToken, _ := payload["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatal("signin should return both tokens")
	}
	if payload["role"] != "worker" {
		t.Errorf("default role = %v, want worker", payload["role"])
	}

	// The access token authenticates /api/session.
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rr2 := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr2, req)
	payload = decodeJSON(t, rr2)
	if payload["authenticated"] != true || payload["userName"] != "Sam" {
		t.Errorf("session payload = %v", payload)
	}

	// Refresh rotates, then logout revokes.
	rr = postJSON(t, server, "/api/session/refresh", fmt.Sprintf(`{"refreshToken":%q}`, refreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr = postJSON(t, server, "/api/session/refresh", fmt.Sprintf(`{"refreshToken":%q}`, refreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d, want 401", rr.Code)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	server, fs := newAuthTestServer(t)
	seedUser(fs, "usr-1", "Sam", "worker")

	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"sam@example.com","password":"hunter2hunter2","displayName":"Sam"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", rr.Code)
	}
	if decodeJSON(t, rr)["code"] != "EMAIL_EXISTS" {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestSignInWrongPassword(t *testing.T) {
	server, _ := newAuthTestServer(t)

	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"sam@example.com","password":"hunter2hunter2","displayName":"Sam"}`)
	token := decodeJSON(t, rr)["devVerificationToken"].(string)
	postJSON(t, server, "/api/auth/verify-email", fmt.Sprintf(`{"token":%q}`, token))

	rr = postJSON(t, server, "/api/auth/signin", `{"email":"sam@example.com","password":"wrong-password"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rr.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	server, _ := newAuthTestServer(t)

	rr := postJSON(t, server, "/api/auth/signup",
		`{"email":"sam@example.com","password":"hunter2hunter2","displayName":"Sam"}`)
	verify := decodeJSON(t, rr)["devVerificationToken"].(string)
	postJSON(t, server, "/api/auth/verify-email", fmt.Sprintf(`{"token":%q}`, verify))

	rr = postJSON(t, server, "/api/auth/reset-password/request", `{"email":"sam@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request status = %d", rr.Code)
	}
	resetToken, _ := decodeJSON(t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected devResetToken without SMTP")
	}

	// Unknown emails get the same response shape, no token.
	rr = postJSON(t, server, "/api/auth/reset-password/request", `{"email":"nobody@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown email reset status = %d", rr.Code)
	}
	if _, ok := decodeJSON(t, rr)["devResetToken"]; ok {
		t.Error("unknown email must not leak a reset token")
	}

	rr = postJSON(t, server, "/api/auth/reset-password",
		fmt.Sprintf(`{"token":%q,"newPassword":"brand-new-password"}`, resetToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, server, "/api/auth/signin", `{"email":"sam@example.com","password":"brand-new-password"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin with new password status = %d", rr.Code)
	}
	rr = postJSON(t, server, "/api/auth/signin", `{"email":"sam@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("old password should be rejected, got %d", rr.Code)
	}
}

func TestAuthUnavailableWithoutService(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/signup", `{"email":"a@b.c","password":"12345678","displayName":"A"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
