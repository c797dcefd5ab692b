package api_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/intake/api"
)

func TestLoggingMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})

	handler := api.LoggingMiddleware(next)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/log", nil))
	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if string(b) != "ok" {
		t.Fatalf("unexpected body: %q", string(b))
	}
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := api.CORSMiddleware(next)

	wOpt := httptest.NewRecorder()
	handler.ServeHTTP(wOpt, httptest.NewRequest(http.MethodOptions, "/cors", nil))
	if wOpt.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for OPTIONS, got %d", wOpt.Code)
	}
	if called {
		t.Fatal("OPTIONS must not reach the next handler")
	}
	if got := wOpt.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header set, got %q", got)
	}

	wGet := httptest.NewRecorder()
	handler.ServeHTTP(wGet, httptest.NewRequest(http.MethodGet, "/cors", nil))
	if wGet.Code != http.StatusOK || !called {
		t.Fatalf("expected GET to pass through, got %d", wGet.Code)
	}
	if got := wGet.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected Allow-Methods to include DELETE, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	pan := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	w := httptest.NewRecorder()
	api.RecoveryMiddleware(pan).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from panic recovery, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client: %s", w.Body.String())
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	w2 := httptest.NewRecorder()
	api.RecoveryMiddleware(ok).ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 for normal path, got %d", w2.Code)
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestAuthMiddlewareWithSecret(t *testing.T) {
	secret := "s3cr3t"
	var got api.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = api.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := api.AuthMiddlewareWithSecret(secret)(next)

	valid := signToken(t, secret, jwt.MapClaims{
		"reviewer_id": 7, "username": "rev", "superuser": true,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, secret, jwt.MapClaims{"reviewer_id": 7, "exp": time.Now().Add(-time.Hour).Unix()})
	noID := signToken(t, secret, jwt.MapClaims{"username": "rev", "exp": time.Now().Add(time.Hour).Unix()})
	otherKey := signToken(t, "other", jwt.MapClaims{"reviewer_id": 7, "exp": time.Now().Add(time.Hour).Unix()})

	cases := []struct {
		name       string
		authHeader string
		wantStatus int
		wantID     int64
	}{
		{name: "Anonymous", authHeader: "", wantStatus: http.StatusOK},
		{name: "EmptyBearer", authHeader: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "WrongScheme", authHeader: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "BadToken", authHeader: "Bearer bad.token.here", wantStatus: http.StatusUnauthorized},
		{name: "Expired", authHeader: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "NoReviewerID", authHeader: "Bearer " + noID, wantStatus: http.StatusUnauthorized},
		{name: "WrongKey", authHeader: "Bearer " + otherKey, wantStatus: http.StatusUnauthorized},
		{name: "Valid", authHeader: "Bearer " + valid, wantStatus: http.StatusOK, wantID: 7},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got = api.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/jwt", nil)
			if c.authHeader != "" {
				req.Header.Set("Authorization", c.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != c.wantStatus {
				t.Fatalf("want %d got %d", c.wantStatus, w.Code)
			}
			if got.ReviewerID != c.wantID {
				t.Fatalf("principal id: want %d got %d", c.wantID, got.ReviewerID)
			}
		})
	}

	if got.Username != "rev" || !got.Superuser {
		t.Fatalf("unexpected principal from valid token: %+v", got)
	}
}
