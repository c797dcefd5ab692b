package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/garnizeh/intake/api"
	"github.com/garnizeh/intake/internal/errs"
)

func TestPolicyAllow(t *testing.T) {
	p, err := api.NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	anon := api.Principal{}
	rev := api.Principal{ReviewerID: 1, Username: "rev"}
	root := api.Principal{ReviewerID: 2, Username: "root", Superuser: true}

	cases := []struct {
		action string
		caller api.Principal
		want   error
	}{
		{api.ActProjectsCreate, anon, nil},
		{api.ActCategoriesList, anon, nil},
		{api.ActProjectsList, anon, errs.ErrUnauthorized},
		{api.ActProjectsList, rev, nil},
		{api.ActAttachmentsCreate, anon, errs.ErrUnauthorized},
		{api.ActCategoriesCreate, rev, errs.ErrForbidden},
		{api.ActCategoriesCreate, anon, errs.ErrUnauthorized},
		{api.ActCategoriesDelete, root, nil},
		{"unknown.action", rev, errs.ErrForbidden},
	}
	for _, c := range cases {
		err := p.Allow(c.action, c.caller)
		if c.want == nil && err != nil {
			t.Errorf("%s by %q: unexpected error %v", c.action, c.caller.Username, err)
		}
		if c.want != nil && !errors.Is(err, c.want) {
			t.Errorf("%s by %q: want %v got %v", c.action, c.caller.Username, c.want, err)
		}
	}
}

func TestPolicyOverrides(t *testing.T) {
	p, err := api.NewPolicy(map[string]string{api.ActAttachmentsCreate: "public"})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if got := p.Capability(api.ActAttachmentsCreate); got != api.CapPublic {
		t.Fatalf("override not applied: %s", got)
	}
	if err := p.Allow(api.ActAttachmentsCreate, api.Principal{}); err != nil {
		t.Fatalf("anonymous upload should be allowed: %v", err)
	}

	if _, err := api.NewPolicy(map[string]string{"nope": "public"}); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := api.NewPolicy(map[string]string{api.ActLogsList: "admin"}); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestPolicyRequire(t *testing.T) {
	p, _ := api.NewPolicy(nil)
	ran := false
	h := p.Require(api.ActLogsList, func(w http.ResponseWriter, r *http.Request) {
		ran = true
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))
	if w.Code != http.StatusUnauthorized || ran {
		t.Fatalf("anonymous: got %d ran=%v", w.Code, ran)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	req = req.WithContext(api.WithPrincipal(req.Context(), api.Principal{ReviewerID: 3}))
	w = httptest.NewRecorder()
	h(w, req)
	if w.Code != http.StatusOK || !ran {
		t.Fatalf("reviewer: got %d ran=%v", w.Code, ran)
	}
}
