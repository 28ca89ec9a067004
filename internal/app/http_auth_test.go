package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"relieflink/api/internal/store"
)

// memoryUserStore wires the fake store to an in-memory users table so the
// register → login → refresh → logout flow can run end to end.
func memoryUserStore(fs *fakeStore) {
	users := map[string]store.User{}
	fs.createUserFn = func(_ context.Context, user store.User) error {
		users[user.Email] = user
		return nil
	}
	fs.getUserByEmailFn = func(_ context.Context, email string) (store.User, error) {
		user, ok := users[email]
		if !ok {
			return store.User{}, sql.ErrNoRows
		}
		return user, nil
	}
	fs.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		for _, user := range users {
			if user.ID == id {
				return user, nil
			}
		}
		return store.User{}, sql.ErrNoRows
	}
}

func postJSON(t *testing.T, server *HTTPServer, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestRegisterLoginRefreshLogoutFlow(t *testing.T) {
	fs := &fakeStore{}
	memoryUserStore(fs)
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/register", `{"email":"kai@example.org","password":"hunter2hunter2","displayName":"Kai","role":"volunteer"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var registered map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &registered); err != nil {
		t.Fatalf("parse register response: %v", err)
	}
	if registered["role"] != "volunteer" || registered["landing"] != "/volunteer" {
		t.Fatalf("unexpected register payload: %v", registered)
	}

	rr = postJSON(t, server, "/api/auth/login", `{"email":"KAI@example.org","password":"hunter2hunter2"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var session map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &session); err != nil {
		t.Fatalf("parse login response: %v", err)
	}
	token, _ := session["token"].(string)
	refreshToken, _ := session["refreshToken"].(string)
	if token == "" || refreshToken == "" {
		t.Fatalf("expected token pair, got %v", session)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	sessionRR := httptest.NewRecorder()
	server.Handler().ServeHTTP(sessionRR, req)
	var current map[string]any
	if err := json.Unmarshal(sessionRR.Body.Bytes(), &current); err != nil {
		t.Fatalf("parse session response: %v", err)
	}
	if current["authenticated"] != true || current["userName"] != "Kai" {
		t.Fatalf("unexpected session payload: %v", current)
	}

	rr = postJSON(t, server, "/api/session/refresh", `{"refreshToken":"`+refreshToken+`"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var rotated map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("parse refresh response: %v", err)
	}
	if rotated["refreshToken"] == refreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	// The presented refresh token was revoked during rotation.
	rr = postJSON(t, server, "/api/session/refresh", `{"refreshToken":"`+refreshToken+`"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token: expected 401, got %d", rr.Code)
	}

	newRefresh, _ := rotated["refreshToken"].(string)
	rr = postJSON(t, server, "/api/session/logout", `{"refreshToken":"`+newRefresh+`"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	rr = postJSON(t, server, "/api/session/refresh", `{"refreshToken":"`+newRefresh+`"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rr.Code)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	fs := &fakeStore{}
	memoryUserStore(fs)
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/register", `{"email":"x@example.org","password":"hunter2hunter2","displayName":"X","role":"civilian"}`, "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown role, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	fs := &fakeStore{}
	memoryUserStore(fs)
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	body := `{"email":"kai@example.org","password":"hunter2hunter2","displayName":"Kai","role":"volunteer"}`
	if rr := postJSON(t, server, "/api/auth/register", body, ""); rr.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", rr.Code)
	}
	if rr := postJSON(t, server, "/api/auth/register", body, ""); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rr.Code)
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	fs := &fakeStore{}
	memoryUserStore(fs)
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	if rr := postJSON(t, server, "/api/auth/register", `{"email":"kai@example.org","password":"hunter2hunter2","displayName":"Kai","role":"volunteer"}`, ""); rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rr.Code)
	}
	rr := postJSON(t, server, "/api/auth/login", `{"email":"kai@example.org","password":"wrong-password"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionEndpointWithoutTokenIsAnonymous(t *testing.T) {
	svc, _ := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", payload)
	}
}
