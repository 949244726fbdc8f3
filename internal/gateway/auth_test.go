package gateway

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCheckAllowsWhenNoToken(t *testing.T) {
	a := NewAuth("", nil)
	if !a.Check(http.Header{}) {
		t.Fatalf("expected passthrough when no token is configured")
	}
}

func TestCheckRejectsMissingHeader(t *testing.T) {
	a := NewAuth("secret", nil)
	if a.Check(http.Header{}) {
		t.Fatalf("expected rejection with no Authorization header")
	}
}

func TestCheckRejectsWrongToken(t *testing.T) {
	a := NewAuth("secret", nil)
	h := http.Header{}
	h.Set("Authorization", "Bearer wrong")
	if a.Check(h) {
		t.Fatalf("expected rejection for mismatched token")
	}
}

func TestCheckAcceptsMatchingToken(t *testing.T) {
	a := NewAuth("secret", nil)
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	if !a.Check(h) {
		t.Fatalf("expected acceptance for matching token")
	}
}

func TestCheckJWTAcceptsValidToken(t *testing.T) {
	secret := "hmac-secret"
	a := NewAuth(secret, nil)
	a.Mode = AuthModeJWT

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+signed)
	if !a.Check(h) {
		t.Fatalf("expected acceptance of a validly signed JWT")
	}
}

func TestCheckJWTRejectsWrongSecret(t *testing.T) {
	a := NewAuth("hmac-secret", nil)
	a.Mode = AuthModeJWT

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+signed)
	if a.Check(h) {
		t.Fatalf("expected rejection of a JWT signed with a different secret")
	}
}

func TestMiddlewareRejectsUnauthorized(t *testing.T) {
	a := NewAuth("secret", nil)
	called := false
	mw := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := &recorderResponseWriter{header: http.Header{}}
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	mw.ServeHTTP(rec, req)

	if called {
		t.Fatalf("handler should not run for unauthorized requests")
	}
	if rec.status != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.status)
	}
}

type recorderResponseWriter struct {
	header http.Header
	status int
}

func (r *recorderResponseWriter) Header() http.Header { return r.header }
func (r *recorderResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (r *recorderResponseWriter) WriteHeader(status int) { r.status = status }
