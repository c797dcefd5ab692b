package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/intake/api"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository/mock"
)

func TestAuthSignin(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	hash, err := api.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	bob := models.Reviewer{Username: "bob", Email: "bob@example.com", PasswordHash: hash, IsSuperuser: true}

	tests := []struct {
		name       string
		body       any
		prepare    func(m *mock.Mocks)
		wantStatus int
		checkBody  func(t *testing.T, body []byte)
	}{
		{
			name:       "InvalidRequest",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "MissingUsername",
			body:       map[string]string{"password": "nop"},
			wantStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, b []byte) {
				if !bytes.Contains(b, []byte(`"username"`)) {
					t.Fatalf("expected username field error, got %s", b)
				}
			},
		},
		{
			name:       "MissingPassword",
			body:       map[string]string{"username": "bob"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "MissingUser",
			body:       map[string]string{"username": "ghost", "password": "nop"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "WrongPassword",
			body: map[string]string{"username": "bob", "password": "wrongpw"},
			prepare: func(m *mock.Mocks) {
				b := bob
				m.Reviewers.CreateReviewer(context.Background(), &b)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "RepoFailure",
			body: map[string]string{"username": "bob", "password": "hunter2"},
			prepare: func(m *mock.Mocks) {
				m.Reviewers.GetErr = fmt.Errorf("disk on fire")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Success",
			body: map[string]string{"username": "bob", "password": "hunter2"},
			prepare: func(m *mock.Mocks) {
				b := bob
				m.Reviewers.CreateReviewer(context.Background(), &b)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, b []byte) {
				var ar struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(b, &ar); err != nil {
					t.Fatalf("unmarshal token: %v", err)
				}
				tok, err := jwt.Parse(ar.Token, func(token *jwt.Token) (any, error) { return []byte(secret), nil })
				if err != nil {
					t.Fatalf("invalid token: %v", err)
				}
				claims := tok.Claims.(jwt.MapClaims)
				if claims["username"] != "bob" || claims["superuser"] != true {
					t.Fatalf("unexpected claims: %v", claims)
				}
				if id, ok := claims["reviewer_id"].(float64); !ok || id != 1 {
					t.Fatalf("unexpected reviewer_id: %v", claims["reviewer_id"])
				}
				if expF, ok := claims["exp"].(float64); !ok || int64(expF) < time.Now().Unix() {
					t.Fatalf("invalid exp claim")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := mock.NewMocks()
			if tt.prepare != nil {
				tt.prepare(mocks)
			}
			handler := api.NewAuthHandler(mocks.Reviewers, secret, tokenDur)

			var bodyReader io.Reader
			if tt.body != nil {
				b, _ := json.Marshal(tt.body)
				bodyReader = bytes.NewReader(b)
			}
			req := httptest.NewRequest(http.MethodPost, "/v1/auth/signin", bodyReader)
			w := httptest.NewRecorder()
			handler.Signin(w, req)

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d got %d body=%s", tt.wantStatus, res.StatusCode, string(data))
			}
			if tt.checkBody != nil {
				tt.checkBody(t, data)
			}
		})
	}
}

func TestHashPasswordEmpty(t *testing.T) {
	if _, err := api.HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
