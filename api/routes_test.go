package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/intake/api"
	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/config"
	"github.com/garnizeh/intake/internal/db/dbtest"
	"github.com/garnizeh/intake/internal/lifecycle"
	"github.com/garnizeh/intake/internal/notify"
	"github.com/garnizeh/intake/internal/repository/sqlite"
	"github.com/garnizeh/intake/internal/storage"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

const testSecret = "routes-secret"

type server struct {
	t        *testing.T
	router   http.Handler
	repos    *repository.Repository
	storeDir string
	reviewer string
	superTok string
}

type serverOpts struct {
	download string
	baseURL  string
}

func newServer(t *testing.T, opts serverOpts) *server {
	t.Helper()
	repos := sqlite.New(dbtest.New(t), nil).Repository()
	sink := audit.NewRepoSink(repos.Log, nil)
	svc := lifecycle.NewService(repos, sink, notify.NewInline(notify.NewLogMailer(nil), sink, nil))

	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, opts.baseURL)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	cfg := &config.Config{JWTSecret: testSecret, TokenDuration: time.Hour}
	cfg.Storage.Download = opts.download
	router, err := api.SetupRoutes(cfg, "test", "now", api.Deps{Repos: repos, Service: svc, Sink: sink, Store: store})
	if err != nil {
		t.Fatalf("routes: %v", err)
	}

	s := &server{t: t, router: router, repos: repos, storeDir: dir}
	s.reviewer = s.addReviewer("rev", false)
	s.superTok = s.addReviewer("root", true)
	return s
}

func (s *server) addReviewer(username string, super bool) string {
	s.t.Helper()
	rv := &models.Reviewer{Username: username, Email: username + "@example.com", PasswordHash: "x", IsSuperuser: super}
	id, err := s.repos.Reviewer.CreateReviewer(context.Background(), rv)
	if err != nil {
		s.t.Fatalf("create reviewer: %v", err)
	}
	return signToken(s.t, testSecret, jwt.MapClaims{
		"reviewer_id": id, "username": username, "superuser": super,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, token)
}

func (s *server) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) upload(token string, project int64, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if project != 0 {
		_ = mw.WriteField("project", fmt.Sprint(project))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		s.t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(req, token)
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d got %d body=%s", status, w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

type page struct {
	Count    int64             `json:"count"`
	Next     *int              `json:"next"`
	Previous *int              `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

func projectBody(title string, budget any) map[string]any {
	return map[string]any{
		"title":         title,
		"description":   "A proposal",
		"budget":        budget,
		"deadline":      time.Now().AddDate(0, 0, 14).Format("2006-01-02"),
		"sender_name":   "Ana",
		"contact_email": "ana@example.com",
	}
}

func (s *server) createProject(title string, budget any) int64 {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/projects", "", projectBody(title, budget))
	expect(s.t, w, http.StatusCreated)
	return decode[struct {
		ID int64 `json:"id"`
	}](s.t, w).ID
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, serverOpts{})

	w := s.do(http.MethodPost, "/v1/projects", "", projectBody("Solar roof", "1500.50"))
	expect(t, w, http.StatusCreated)
	created := decode[struct {
		ID           int64  `json:"id"`
		Status       string `json:"status"`
		Priority     string `json:"priority"`
		Notification string `json:"notification"`
	}](t, w)
	if created.Status != "NEW" || created.Priority != "MEDIUM" || created.Notification != "sent" {
		t.Fatalf("unexpected create response %+v", created)
	}
	base := fmt.Sprintf("/v1/projects/%d", created.ID)

	expect(t, s.do(http.MethodGet, "/v1/projects", "", nil), http.StatusUnauthorized)
	expect(t, s.do(http.MethodPost, base+"/accept", "", nil), http.StatusUnauthorized)

	w = s.do(http.MethodPost, base+"/accept", s.reviewer, map[string]string{"comment_text": "Looks good"})
	expect(t, w, http.StatusOK)
	tr := decode[struct {
		Detail       string `json:"detail"`
		Status       string `json:"status"`
		CommentText  string `json:"comment_text"`
		Notification string `json:"notification"`
	}](t, w)
	if tr.Detail != "Project accepted" || tr.Status != "ACCEPTED" || tr.CommentText != "Looks good" || tr.Notification != "sent" {
		t.Fatalf("unexpected transition response %+v", tr)
	}

	expect(t, s.do(http.MethodPost, base+"/accept", s.reviewer, nil), http.StatusBadRequest)
	expect(t, s.do(http.MethodPost, base+"/completed", s.reviewer, nil), http.StatusBadRequest)
	expect(t, s.do(http.MethodPost, base+"/start", s.reviewer, nil), http.StatusOK)
	expect(t, s.do(http.MethodPost, base+"/completed", s.reviewer, nil), http.StatusOK)
	expect(t, s.do(http.MethodPost, "/v1/projects/9999/accept", s.reviewer, nil), http.StatusNotFound)

	w = s.do(http.MethodGet, base, s.reviewer, nil)
	expect(t, w, http.StatusOK)
	got := decode[struct {
		Status      string `json:"status"`
		Budget      string `json:"budget"`
		AcceptedBy  *int64 `json:"accepted_by"`
		CompletedBy *int64 `json:"completed_by"`
		Comments    []struct {
			CommentText string `json:"comment_text"`
			AuthorName  string `json:"author_name"`
		} `json:"comments"`
	}](t, w)
	if got.Status != "COMPLETED" || got.AcceptedBy == nil || got.CompletedBy == nil {
		t.Fatalf("unexpected project %+v", got)
	}
	// one comment per transition, oldest first
	if len(got.Comments) != 3 || got.Comments[0].CommentText != "Looks good" || got.Comments[0].AuthorName != "rev" {
		t.Fatalf("unexpected comments %+v", got.Comments)
	}

	w = s.do(http.MethodGet, "/v1/projects/my-projects", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 1 {
		t.Fatalf("my-projects: expected 1 got %d", p.Count)
	}
	w = s.do(http.MethodGet, "/v1/projects/my-projects", s.superTok, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 0 {
		t.Fatalf("my-projects for other reviewer: expected 0 got %d", p.Count)
	}

	w = s.do(http.MethodGet, "/v1/logs?search=accepted", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 1 {
		t.Fatalf("logs: expected one accept entry, got %d", p.Count)
	}
	w = s.do(http.MethodGet, "/v1/logs?actor=rev", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 3 {
		t.Fatalf("logs by rev: expected 3 got %d", p.Count)
	}
}

func TestProjectCreateValidation(t *testing.T) {
	s := newServer(t, serverOpts{})

	cases := []struct {
		name  string
		edit  func(b map[string]any)
		field string
	}{
		{"MissingTitle", func(b map[string]any) { delete(b, "title") }, "title"},
		{"PastDeadline", func(b map[string]any) { b["deadline"] = "2001-01-01" }, "deadline"},
		{"BadEmail", func(b map[string]any) { b["contact_email"] = "not-an-email" }, "contact_email"},
		{"NegativeBudget", func(b map[string]any) { b["budget"] = -1 }, "budget"},
		{"BadPriority", func(b map[string]any) { b["priority"] = "SOMEDAY" }, "priority"},
		{"UnknownCategory", func(b map[string]any) { b["category"] = 42 }, "category"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := projectBody("Title", nil)
			c.edit(body)
			w := s.do(http.MethodPost, "/v1/projects", "", body)
			expect(t, w, http.StatusBadRequest)
			resp := decode[struct {
				Fields map[string]string `json:"fields"`
			}](t, w)
			if _, ok := resp.Fields[c.field]; !ok {
				t.Fatalf("expected error on %s, got %v", c.field, resp.Fields)
			}
		})
	}
}

func TestProjectListFilters(t *testing.T) {
	s := newServer(t, serverOpts{})
	s.createProject("Cheap", "100")
	s.createProject("Middle", "500.25")
	s.createProject("Pricey", "9000")
	s.createProject("Unpriced", nil)

	cases := []struct {
		query string
		want  int64
	}{
		{"", 4},
		{"?budget__gte=100&budget__lte=500.25", 2},
		{"?budget__gte=500.26", 1},
		{"?status=new", 4},
		{"?status=ACCEPTED", 0},
		{"?search=pricey", 1},
		{"?search=pric", 2},
		{"?page_size=3", 4},
	}
	for _, c := range cases {
		w := s.do(http.MethodGet, "/v1/projects"+c.query, s.reviewer, nil)
		expect(t, w, http.StatusOK)
		if p := decode[page](t, w); p.Count != c.want {
			t.Errorf("%q: expected %d got %d", c.query, c.want, p.Count)
		}
	}

	w := s.do(http.MethodGet, "/v1/projects?page_size=3&page=2", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	p := decode[page](t, w)
	if len(p.Results) != 1 || p.Next != nil || p.Previous == nil || *p.Previous != 1 {
		t.Fatalf("unexpected page 2: %+v", p)
	}

	expect(t, s.do(http.MethodGet, "/v1/projects?page=3&page_size=3", s.reviewer, nil), http.StatusNotFound)
	for _, q := range []string{"?status=LOST", "?priority=meh", "?ordering=title", "?budget__gte=abc", "?page=0"} {
		expect(t, s.do(http.MethodGet, "/v1/projects"+q, s.reviewer, nil), http.StatusBadRequest)
	}

	w = s.do(http.MethodGet, "/v1/projects?ordering=-budget", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	first := decode[struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}](t, w)
	if first.Results[0].Title != "Pricey" {
		t.Fatalf("expected Pricey first, got %s", first.Results[0].Title)
	}
}

func TestAttachmentsOverHTTP(t *testing.T) {
	s := newServer(t, serverOpts{download: api.DownloadStream})
	pid := s.createProject("With files", nil)

	expect(t, s.upload("", pid, "notes.txt", "text/plain", []byte("hello")), http.StatusUnauthorized)

	w := s.upload(s.reviewer, pid, "notes.txt", "text/plain", []byte("hello reviewers"))
	expect(t, w, http.StatusCreated)
	att := decode[models.Attachment](t, w)
	if att.Filename != "notes.txt" || att.ContentType != "text/plain" || att.Size != 15 {
		t.Fatalf("unexpected attachment %+v", att)
	}

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/attachments/%d/download", att.ID), s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if w.Body.String() != "hello reviewers" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "notes.txt") {
		t.Fatalf("unexpected disposition %q", cd)
	}

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/attachments?project=%d", pid), s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if list := decode[[]models.Attachment](t, w); len(list) != 1 {
		t.Fatalf("expected one attachment, got %d", len(list))
	}

	big := bytes.Repeat([]byte("a"), 6*1024*1024)
	w = s.upload(s.reviewer, pid, "big.txt", "text/plain", big)
	expect(t, w, http.StatusBadRequest)
	if !strings.Contains(w.Body.String(), "size") {
		t.Fatalf("expected size error, got %s", w.Body.String())
	}

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"),
		bytes.Repeat([]byte{0}, 1000)...)
	w = s.upload(s.reviewer, pid, "report..v2.png", "image/png", png)
	expect(t, w, http.StatusCreated)
	if dotted := decode[models.Attachment](t, w); dotted.Filename != "report..v2.png" || dotted.ContentType != "image/png" {
		t.Fatalf("unexpected attachment %+v", dotted)
	}

	zip := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 64)...)
	w = s.upload(s.reviewer, pid, "archive.zip", "application/zip", zip)
	expect(t, w, http.StatusBadRequest)
	if !strings.Contains(w.Body.String(), "content_type") {
		t.Fatalf("expected content type error, got %s", w.Body.String())
	}

	expect(t, s.upload(s.reviewer, 9999, "notes.txt", "text/plain", []byte("hi")), http.StatusBadRequest)
	expect(t, s.upload(s.reviewer, 0, "notes.txt", "text/plain", []byte("hi")), http.StatusBadRequest)

	// remove the stored object behind the row
	if err := os.RemoveAll(filepath.Join(s.storeDir, "attachments")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	expect(t, s.do(http.MethodGet, fmt.Sprintf("/v1/attachments/%d/download", att.ID), s.reviewer, nil), http.StatusNotFound)

	expect(t, s.do(http.MethodDelete, fmt.Sprintf("/v1/attachments/%d", att.ID), s.reviewer, nil), http.StatusNoContent)
	expect(t, s.do(http.MethodGet, fmt.Sprintf("/v1/attachments/%d", att.ID), s.reviewer, nil), http.StatusNotFound)
}

func TestAttachmentDownloadRedirect(t *testing.T) {
	s := newServer(t, serverOpts{download: api.DownloadRedirect, baseURL: "https://files.example.com"})
	pid := s.createProject("Redirected", nil)

	w := s.upload(s.reviewer, pid, "brief.txt", "text/plain", []byte("brief"))
	expect(t, w, http.StatusCreated)
	att := decode[models.Attachment](t, w)

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/attachments/%d/download", att.ID), s.reviewer, nil)
	expect(t, w, http.StatusFound)
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://files.example.com/attachments/") || !strings.Contains(loc, "download=1") {
		t.Fatalf("unexpected location %q", loc)
	}

	w = s.do(http.MethodGet, "/v1/logs?search=downloaded", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 1 {
		t.Fatalf("expected one download audit entry, got %d", p.Count)
	}
}

func TestAttachmentRedirectFallsBackToStream(t *testing.T) {
	s := newServer(t, serverOpts{download: api.DownloadRedirect})
	pid := s.createProject("No base url", nil)

	w := s.upload(s.reviewer, pid, "brief.txt", "text/plain", []byte("brief"))
	expect(t, w, http.StatusCreated)
	att := decode[models.Attachment](t, w)

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/attachments/%d/download", att.ID), s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if w.Body.String() != "brief" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestCategoriesOverHTTP(t *testing.T) {
	s := newServer(t, serverOpts{})

	expect(t, s.do(http.MethodPost, "/v1/categories", "", map[string]string{"name": "Energy"}), http.StatusUnauthorized)
	expect(t, s.do(http.MethodPost, "/v1/categories", s.reviewer, map[string]string{"name": "Energy"}), http.StatusForbidden)
	expect(t, s.do(http.MethodPost, "/v1/categories", s.superTok, map[string]string{"name": " "}), http.StatusBadRequest)

	w := s.do(http.MethodPost, "/v1/categories", s.superTok, map[string]string{"name": "Energy"})
	expect(t, w, http.StatusCreated)
	cat := decode[models.Category](t, w)
	expect(t, s.do(http.MethodPost, "/v1/categories", s.superTok, map[string]string{"name": "Energy"}), http.StatusConflict)

	w = s.do(http.MethodGet, "/v1/categories", "", nil)
	expect(t, w, http.StatusOK)
	if list := decode[[]models.Category](t, w); len(list) != 1 || list[0].Name != "Energy" {
		t.Fatalf("unexpected categories %+v", list)
	}

	body := projectBody("Wind farm", nil)
	body["category"] = cat.ID
	expect(t, s.do(http.MethodPost, "/v1/projects", "", body), http.StatusCreated)
	w = s.do(http.MethodGet, "/v1/projects?category__name=ener", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 1 {
		t.Fatalf("category filter: expected 1 got %d", p.Count)
	}

	expect(t, s.do(http.MethodDelete, fmt.Sprintf("/v1/categories/%d", cat.ID), s.superTok, nil), http.StatusNoContent)
	expect(t, s.do(http.MethodDelete, fmt.Sprintf("/v1/categories/%d", cat.ID), s.superTok, nil), http.StatusNotFound)

	w = s.do(http.MethodGet, "/v1/projects", s.reviewer, nil)
	expect(t, w, http.StatusOK)
	if p := decode[page](t, w); p.Count != 1 {
		t.Fatalf("project should survive category delete, got %d", p.Count)
	}
}

func TestCommentsOverHTTP(t *testing.T) {
	s := newServer(t, serverOpts{})
	pid := s.createProject("Commented", nil)

	expect(t, s.do(http.MethodPost, "/v1/comments", "", map[string]any{"project": pid, "comment_text": "hi"}), http.StatusUnauthorized)
	expect(t, s.do(http.MethodPost, "/v1/comments", s.reviewer, map[string]any{"project": 9999, "comment_text": "hi"}), http.StatusBadRequest)
	expect(t, s.do(http.MethodPost, "/v1/comments", s.reviewer, map[string]any{"project": pid, "comment_text": " "}), http.StatusBadRequest)

	w := s.do(http.MethodPost, "/v1/comments", s.reviewer, map[string]any{"project": pid, "comment_text": "Need a budget"})
	expect(t, w, http.StatusCreated)
	c := decode[struct {
		ID           int64  `json:"id"`
		AuthorName   string `json:"author_name"`
		Notification string `json:"notification"`
	}](t, w)
	if c.AuthorName != "Anonymous" || c.Notification != "sent" {
		t.Fatalf("unexpected comment %+v", c)
	}

	expect(t, s.do(http.MethodPost, "/v1/comments", s.reviewer,
		map[string]any{"project": pid, "comment_text": "Second", "author_name": "Bea"}), http.StatusCreated)

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/comments?project=%d", pid), s.reviewer, nil)
	expect(t, w, http.StatusOK)
	list := decode[[]models.Comment](t, w)
	if len(list) != 2 || list[0].CommentText != "Need a budget" || list[1].AuthorName != "Bea" {
		t.Fatalf("unexpected comments %+v", list)
	}

	expect(t, s.do(http.MethodGet, fmt.Sprintf("/v1/comments/%d", c.ID), s.reviewer, nil), http.StatusOK)
	expect(t, s.do(http.MethodGet, "/v1/comments/9999", s.reviewer, nil), http.StatusNotFound)
}

func TestSigninOverHTTP(t *testing.T) {
	s := newServer(t, serverOpts{})
	hash, err := api.HashPassword("pw123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := s.repos.Reviewer.CreateReviewer(context.Background(), &models.Reviewer{Username: "carol", Email: "c@example.com", PasswordHash: hash}); err != nil {
		t.Fatalf("create reviewer: %v", err)
	}

	w := s.do(http.MethodPost, "/v1/auth/signin", "", map[string]string{"username": "carol", "password": "pw123"})
	expect(t, w, http.StatusOK)
	tok := decode[struct {
		Token string `json:"token"`
	}](t, w).Token
	expect(t, s.do(http.MethodGet, "/v1/logs", tok, nil), http.StatusOK)
	expect(t, s.do(http.MethodGet, "/v1/logs", "garbage", nil), http.StatusUnauthorized)
	expect(t, s.do(http.MethodGet, "/health", "", nil), http.StatusOK)
}
