package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/qri-io/jsonschema"
	"github.com/shopspring/decimal"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/internal/lifecycle"
	"github.com/garnizeh/intake/internal/notify"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

//go:embed schema/project_create.json
var projectCreateSchema []byte

// requiredKey pulls the property name out of a schema "required" failure,
// which is reported against the document root.
var requiredKey = regexp.MustCompile(`^"([^"]+)" value is required`)

type ProjectsHandler struct {
	repos  *repository.Repository
	svc    *lifecycle.Service
	schema *jsonschema.Schema
}

func NewProjectsHandler(repos *repository.Repository, svc *lifecycle.Service) (*ProjectsHandler, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(projectCreateSchema, rs); err != nil {
		return nil, fmt.Errorf("load project schema: %w", err)
	}
	return &ProjectsHandler{repos: repos, svc: svc, schema: rs}, nil
}

type createProjectRequest struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Budget       *decimal.Decimal `json:"budget"`
	Deadline     models.Date      `json:"deadline"`
	StartDate    *models.Date     `json:"start_date"`
	EndDate      *models.Date     `json:"end_date"`
	SenderName   string           `json:"sender_name"`
	ContactEmail string           `json:"contact_email"`
	Category     *int64           `json:"category"`
	Priority     models.Priority  `json:"priority"`
}

type projectResponse struct {
	*models.Project
	Notification notify.Delivery `json:"notification,omitempty"`
}

type transitionRequest struct {
	CommentText string `json:"comment_text"`
}

type transitionResponse struct {
	Detail       string          `json:"detail"`
	Status       models.Status   `json:"status"`
	CommentText  string          `json:"comment_text"`
	Notification notify.Delivery `json:"notification"`
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, fmt.Errorf("read body: %w", err))
		return
	}
	if err := h.validateSchema(r, body); err != nil {
		writeError(w, err)
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}

	p, out, err := h.svc.Create(r.Context(), lifecycle.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Budget:       req.Budget,
		Deadline:     req.Deadline,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		SenderName:   req.SenderName,
		ContactEmail: req.ContactEmail,
		CategoryID:   req.Category,
		Priority:     req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse{Project: p, Notification: out.Notification})
}

func (h *ProjectsHandler) validateSchema(r *http.Request, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("%w: body is not valid JSON", errs.ErrValidation)
	}
	keyErrs, err := h.schema.ValidateBytes(r.Context(), body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if len(keyErrs) == 0 {
		return nil
	}
	ve := &errs.ValidationError{}
	for _, ke := range keyErrs {
		field := strings.Trim(ke.PropertyPath, "/")
		if m := requiredKey.FindStringSubmatch(ke.Message); field == "" && m != nil {
			field = m[1]
		}
		if field == "" {
			field = "body"
		}
		ve.Add(field, ke.Message)
	}
	return ve
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseProjectFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.list(w, r, f)
}

// Mine lists projects the caller accepted, started or completed.
func (h *ProjectsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	f, err := parseProjectFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := PrincipalFrom(r.Context()).ReviewerID
	f.ReviewerID = &id
	h.list(w, r, f)
}

func (h *ProjectsHandler) list(w http.ResponseWriter, r *http.Request, f repository.ProjectFilter) {
	ctx := r.Context()
	count, err := h.repos.Project.CountProjects(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	projects, err := h.repos.Project.ListProjects(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := newPage(projects, count, f.Page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	p, err := h.repos.Project.GetProject(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeError(w, errs.NotFound("project", id))
		return
	}
	if p.Attachments, err = h.repos.Attachment.ListAttachments(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	if p.Comments, err = h.repos.Comment.ListComments(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Project: p})
}

// Transition returns the handler for one lifecycle action.
func (h *ProjectsHandler) Transition(action lifecycle.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		var req transitionRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, err)
			return
		}

		caller := PrincipalFrom(r.Context())
		res, err := h.svc.Transition(r.Context(), action, id,
			lifecycle.Actor{ReviewerID: caller.ReviewerID, Username: caller.Username}, req.CommentText)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transitionResponse{
			Detail:       lifecycle.Detail(action),
			Status:       res.Status,
			CommentText:  res.CommentText,
			Notification: res.Notification,
		})
	}
}
