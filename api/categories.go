package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

const maxCategoryName = 100

type CategoriesHandler struct {
	repo repository.CategoryRepo
	sink audit.Sink
}

func NewCategoriesHandler(repo repository.CategoryRepo, sink audit.Sink) *CategoriesHandler {
	return &CategoriesHandler{repo: repo, sink: sink}
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		writeError(w, errs.Invalid("name", "this field is required"))
		return
	case len([]rune(name)) > maxCategoryName:
		writeError(w, errs.Invalid("name", fmt.Sprintf("ensure this field has no more than %d characters", maxCategoryName)))
		return
	}

	ctx := r.Context()
	id, err := h.repo.CreateCategory(ctx, name)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := PrincipalFrom(ctx)
	record(r, h.sink, audit.Entry{
		Category: "Create category",
		Message:  fmt.Sprintf("Category '%s' created by %s.", name, caller.Username),
		Actor:    caller.Username,
	})
	writeJSON(w, http.StatusCreated, models.Category{ID: id, Name: name})
}

// Delete removes a category. Projects in it keep existing without one.
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	c, err := h.repo.GetCategory(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, errs.NotFound("category", id))
		return
	}
	if err := h.repo.DeleteCategory(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	caller := PrincipalFrom(ctx)
	record(r, h.sink, audit.Entry{
		Category: "Delete category",
		Message:  fmt.Sprintf("Category '%s' deleted by %s.", c.Name, caller.Username),
		Actor:    caller.Username,
	})
	w.WriteHeader(http.StatusNoContent)
}
