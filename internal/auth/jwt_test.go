package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Generate("u1", "Hana")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	userID, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != "u1" {
		t.Fatalf("user id = %q, want u1", userID)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", time.Hour).Generate("u1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = NewJWTService("secret-b", time.Hour).Validate(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	token, err := svc.Generate("u1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestJWTRequiresUserID(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	if _, err := svc.Generate("  ", ""); err == nil {
		t.Fatal("blank user id must be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.Generate("u1", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var seenUser string
	handler := Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserID(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer header", header: "Bearer " + token, wantStatus: http.StatusOK, wantUser: "u1"},
		{name: "query token", query: token, wantStatus: http.StatusOK, wantUser: "u1"},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-token", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.query != "" {
				q := req.URL.Query()
				q.Set("token", tt.query)
				req.URL.RawQuery = q.Encode()
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seenUser != tt.wantUser {
				t.Fatalf("user id = %q, want %q", seenUser, tt.wantUser)
			}
		})
	}
}
