package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relieflink/api/internal/auth"
	"relieflink/api/internal/store"
)

func TestAssignEndpointIsAdminOnly(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		shouldDeny bool
	}{
		{name: "volunteer denied", role: "volunteer", shouldDeny: true},
		{name: "responder denied", role: "responder", shouldDeny: true},
		{name: "admin allowed", role: "admin", shouldDeny: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{
				assignReportFn: func(_ context.Context, reportID, target, _ string) (store.Report, error) {
					return store.Report{ID: reportID, Status: "assigned", AssignedTo: target}, nil
				},
			}
			server, token := newServerAndToken(t, fs, tc.role)

			req := httptest.NewRequest(http.MethodPost, "/api/reports/rpt-1/assign", bytes.NewBufferString(`{"target":"volunteer"}`))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			server.Handler().ServeHTTP(rr, req)

			if tc.shouldDeny {
				if rr.Code != http.StatusForbidden {
					t.Fatalf("expected 403 for role=%s, got %d body=%s", tc.role, rr.Code, rr.Body.String())
				}
				var payload map[string]any
				if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
					t.Fatalf("parse response: %v", err)
				}
				if payload["code"] != "FORBIDDEN" {
					t.Fatalf("expected code FORBIDDEN, got %v", payload["code"])
				}
				return
			}
			if rr.Code != http.StatusOK {
				t.Fatalf("expected admin to assign, got %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestStatsEndpointIsAdminOnly(t *testing.T) {
	for _, role := range []string{"volunteer", "responder"} {
		server, token := newServerAndToken(t, &fakeStore{}, role)

		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		server.Handler().ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for role=%s, got %d", role, rr.Code)
		}
	}
}

func TestReportDetailHiddenAcrossAssignmentTargets(t *testing.T) {
	responderReport := func(context.Context, string) (store.Report, error) {
		return store.Report{ID: "rpt-resp", Status: "dispatched", AssignedTo: "responder"}, nil
	}

	server, volunteerToken := newServerAndToken(t, &fakeStore{getReportFn: responderReport}, "volunteer")
	req := httptest.NewRequest(http.MethodGet, "/api/reports/rpt-resp", nil)
	req.Header.Set("Authorization", "Bearer "+volunteerToken)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("volunteer must not read responder report, got %d", rr.Code)
	}

	server, responderToken := newServerAndToken(t, &fakeStore{getReportFn: responderReport}, "responder")
	req = httptest.NewRequest(http.MethodGet, "/api/reports/rpt-resp", nil)
	req.Header.Set("Authorization", "Bearer "+responderToken)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("responder must read unit report, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListReportsRequiresSession(t *testing.T) {
	server, _ := newServerAndToken(t, &fakeStore{}, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}
}

func TestPublicReportSubmissionNeedsNoSession(t *testing.T) {
	fs := &fakeStore{
		getReportFn: func(_ context.Context, reportID string) (store.Report, error) {
			return store.Report{ID: reportID, Category: "flood", Status: "pending", AssignedTo: "unassigned"}, nil
		},
	}
	server, _ := newServerAndToken(t, fs, "admin")

	body := `{"disasterType":"flood","location":"Riverside","description":"Water level rising near the bridge"}`
	req := httptest.NewRequest(http.MethodPost, "/api/reports", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for anonymous submission, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["status"] != "pending" {
		t.Fatalf("expected pending, got %v", payload["status"])
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	fs := &fakeStore{
		isRevokedFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	server, token := newServerAndToken(t, fs, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %d", rr.Code)
	}
}

func newServerAndToken(t *testing.T, fs *fakeStore, role string) (*HTTPServer, string) {
	t.Helper()
	userID := "usr-" + role

	if fs.getUserByIDFn == nil {
		fs.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Test User", Role: role}, nil
		}
	}
	svc, _ := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	token, err := auth.IssueToken([]byte(svc.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: "Test User",
		Role: role,
		JTI:  "jti-" + role,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return server, token
}
