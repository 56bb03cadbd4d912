package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gigflow/identity"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func testServer() *Server {
	return NewServer(nil, nil, nil, nil, nil, nil, identity.NewVerifier(testSecret), nil)
}

func TestAuthenticate(t *testing.T) {
	srv := testServer()

	var got identity.Actor
	handler := srv.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = actorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signToken(t, jwt.MapClaims{
		"user_id": "user-1",
		"role":    "freelancer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + mustSignWith(t, "other-secret"), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{
			"user_id": "user-1", "role": "client", "exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"unknown role", "Bearer " + signToken(t, jwt.MapClaims{
			"user_id": "user-1", "role": "superuser",
		}), http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}

	if got.ID != "user-1" || got.Role != identity.RoleFreelancer {
		t.Errorf("actor = %+v, want user-1/freelancer", got)
	}
}

func mustSignWith(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1",
		"role":    "client",
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRequireAdmin(t *testing.T) {
	srv := testServer()

	protected := srv.authenticate(srv.requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	client := signToken(t, jwt.MapClaims{"user_id": "u1", "role": "client"})
	admin := signToken(t, jwt.MapClaims{"user_id": "a1", "role": "admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/disputes/d1/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+client)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("client status = %d, want 403", rec.Code)
	}

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "forbidden" {
		t.Errorf("code = %q, want forbidden", body.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/disputes/d1/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("admin status = %d, want 204", rec.Code)
	}
}
