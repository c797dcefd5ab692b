package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

type AuthHandler struct {
	reviewers     repository.ReviewerRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(rr repository.ReviewerRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{reviewers: rr, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var errBadCredentials = fmt.Errorf("%w: credentials not found", errs.ErrUnauthorized)

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		ve := &errs.ValidationError{}
		if req.Username == "" {
			ve.Add("username", "this field is required")
		}
		if req.Password == "" {
			ve.Add("password", "this field is required")
		}
		writeError(w, ve)
		return
	}

	rv, err := h.reviewers.GetReviewerByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, fmt.Errorf("look up reviewer: %w", err))
		return
	}
	if rv == nil || bcrypt.CompareHashAndPassword([]byte(rv.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, errBadCredentials)
		return
	}

	token, exp, err := h.issue(rv)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, ExpiresAt: exp})
}

func (h *AuthHandler) issue(rv *models.Reviewer) (string, time.Time, error) {
	exp := time.Now().Add(h.tokenDuration).UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         rv.Username,
		"reviewer_id": rv.ID,
		"username":    rv.Username,
		"superuser":   rv.IsSuperuser,
		"exp":         exp.Unix(),
	})
	s, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

// HashPassword returns the bcrypt hash stored for reviewers.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errs.Invalid("password", "this field is required")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
