package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/internal/lifecycle"
	"github.com/garnizeh/intake/internal/notify"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

type CommentsHandler struct {
	repo repository.CommentRepo
	svc  *lifecycle.Service
}

func NewCommentsHandler(repo repository.CommentRepo, svc *lifecycle.Service) *CommentsHandler {
	return &CommentsHandler{repo: repo, svc: svc}
}

type commentRequest struct {
	Project     int64  `json:"project"`
	CommentText string `json:"comment_text"`
	AuthorName  string `json:"author_name"`
}

type commentResponse struct {
	*models.Comment
	Notification notify.Delivery `json:"notification"`
}

func (h *CommentsHandler) List(w http.ResponseWriter, r *http.Request) {
	var projectID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("project")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, errs.Invalid("project", "enter a whole number"))
			return
		}
		projectID = n
	}
	list, err := h.repo.ListComments(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CommentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	caller := PrincipalFrom(r.Context())
	c, out, err := h.svc.Comment(r.Context(), lifecycle.CommentInput{
		ProjectID:  req.Project,
		Text:       req.CommentText,
		AuthorName: req.AuthorName,
	}, lifecycle.Actor{ReviewerID: caller.ReviewerID, Username: caller.Username})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Comment: c, Notification: out.Notification})
}

func (h *CommentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.repo.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, errs.NotFound("comment", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}
