package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/intake/internal/attachment"
	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/internal/storage"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

// multipartSlack covers the multipart framing around a maximum-size file.
const multipartSlack = 64 << 10

const (
	DownloadRedirect = "redirect"
	DownloadStream   = "stream"
)

type AttachmentsHandler struct {
	repos    *repository.Repository
	store    storage.Store
	sink     audit.Sink
	download string
}

func NewAttachmentsHandler(repos *repository.Repository, store storage.Store, sink audit.Sink, download string) *AttachmentsHandler {
	if download != DownloadRedirect {
		download = DownloadStream
	}
	return &AttachmentsHandler{repos: repos, store: store, sink: sink, download: download}
}

func (h *AttachmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	var projectID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("project")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, errs.Invalid("project", "enter a whole number"))
			return
		}
		projectID = n
	}
	list, err := h.repos.Attachment.ListAttachments(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Attachment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Create accepts a multipart form with fields project and file. The file is
// validated before anything is written to storage.
func (h *AttachmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, attachment.MaxSize+multipartSlack)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, errs.Invalid("file", fmt.Sprintf("size: upload exceeds the %d byte limit", attachment.MaxSize)))
			return
		}
		writeError(w, fmt.Errorf("%w: invalid multipart form: %v", errs.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	ve := &errs.ValidationError{}
	projectID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("project")), 10, 64)
	if err != nil || projectID <= 0 {
		ve.Add("project", "this field is required")
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		ve.Add("file", "no file was submitted")
	}
	if err := ve.OrNil(); err != nil {
		writeError(w, err)
		return
	}
	defer file.Close()

	ctx := r.Context()
	contentType, err := sniff(file, fh)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.repos.Project.GetProject(ctx, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeError(w, errs.Invalid("project", fmt.Sprintf("invalid pk %d, object does not exist", projectID)))
		return
	}

	key := storage.NewKey(fh.Filename)
	if err := h.store.Put(ctx, key, file, contentType); err != nil {
		writeError(w, fmt.Errorf("store attachment: %w", err))
		return
	}
	a := &models.Attachment{
		ProjectID:   projectID,
		StorageKey:  key,
		Filename:    storage.SafeName(fh.Filename),
		ContentType: contentType,
		Size:        fh.Size,
	}
	if _, err := h.repos.Attachment.CreateAttachment(ctx, a); err != nil {
		if derr := h.store.Delete(ctx, key); derr != nil {
			logger.Warn("remove orphaned upload", slog.String("key", key), slog.Any("err", derr))
		}
		writeError(w, err)
		return
	}

	caller := PrincipalFrom(ctx)
	record(r, h.sink, audit.Entry{
		Category: "Upload attachment",
		Message:  fmt.Sprintf("Attachment '%s' uploaded to project '%s' by %s.", a.Filename, p.Title, name(caller)),
		Actor:    caller.Username,
	})
	writeJSON(w, http.StatusCreated, a)
}

// sniff validates the upload and resolves its content type, leaving file
// rewound for storage.
func sniff(file multipart.File, fh *multipart.FileHeader) (string, error) {
	if fh.Size > attachment.MaxSize {
		return attachment.Check(fh.Size, fh.Header.Get("Content-Type"), nil)
	}
	head := make([]byte, attachment.SniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	ct, err := attachment.Check(fh.Size, fh.Header.Get("Content-Type"), head[:n])
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return ct, nil
}

func (h *AttachmentsHandler) load(w http.ResponseWriter, r *http.Request) *models.Attachment {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return nil
	}
	a, err := h.repos.Attachment.GetAttachment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil
	}
	if a == nil {
		writeError(w, errs.NotFound("attachment", id))
		return nil
	}
	return a
}

func (h *AttachmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if a := h.load(w, r); a != nil {
		writeJSON(w, http.StatusOK, a)
	}
}

func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a := h.load(w, r)
	if a == nil {
		return
	}
	ctx := r.Context()
	if err := h.repos.Attachment.DeleteAttachment(ctx, a.ID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.Delete(ctx, a.StorageKey); err != nil && !errors.Is(err, errs.ErrNotFound) {
		logger.Warn("delete stored attachment", slog.String("key", a.StorageKey), slog.Any("err", err))
	}

	caller := PrincipalFrom(ctx)
	record(r, h.sink, audit.Entry{
		Category: "Delete attachment",
		Message:  fmt.Sprintf("Attachment '%s' deleted by %s.", a.Filename, name(caller)),
		Actor:    caller.Username,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Download answers with a redirect to a disposition-forcing URL or streams
// the bytes, depending on the configured policy. A missing backing object is
// not found.
func (h *AttachmentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	a := h.load(w, r)
	if a == nil {
		return
	}
	ctx := r.Context()
	caller := PrincipalFrom(ctx)
	entry := audit.Entry{
		Category: "Attachment download",
		Message:  fmt.Sprintf("Attachment '%s' downloaded by %s.", a.Filename, name(caller)),
		Actor:    caller.Username,
	}

	if h.download == DownloadRedirect {
		u, err := h.store.URL(ctx, a.StorageKey, a.Filename)
		switch {
		case err == nil:
			record(r, h.sink, entry)
			http.Redirect(w, r, u, http.StatusFound)
			return
		case !errors.Is(err, storage.ErrNoURL):
			writeError(w, err)
			return
		}
		// backend cannot link; stream instead
	}

	obj, err := h.store.Open(ctx, a.StorageKey)
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Body.Close()

	record(r, h.sink, entry)
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", storage.Disposition(a.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		logger.Warn("stream attachment", slog.Int64("id", a.ID), slog.Any("err", err))
	}
}

func name(p Principal) string {
	if p.Username != "" {
		return p.Username
	}
	return "Anonymous"
}
