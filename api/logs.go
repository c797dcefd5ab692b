package api

import (
	"net/http"

	"github.com/garnizeh/intake/pkg/repository"
)

type LogsHandler struct {
	repo repository.LogRepo
}

func NewLogsHandler(repo repository.LogRepo) *LogsHandler {
	return &LogsHandler{repo: repo}
}

// List pages through the audit log, newest first.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseLogFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	count, err := h.repo.CountLogs(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	logs, err := h.repo.ListLogs(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := newPage(logs, count, f.Page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
