package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/errs"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

type errorResponse struct {
	Code        int               `json:"code"`
	Message     string            `json:"message"`
	Description string            `json:"description,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

// writeError maps err onto a status through errs.StatusFor. Unknown errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, err error) {
	status, known := errs.StatusFor(err)
	resp := errorResponse{Code: status, Message: http.StatusText(status)}
	if known {
		resp.Description = err.Error()
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			resp.Fields = ve.Fields
		}
	} else {
		logger.Error("internal error", slog.Any("err", err))
		resp.Description = "an unexpected error occurred"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v. An empty body is accepted when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errs.ErrValidation, err)
	}
	return nil
}

// record writes an audit entry; failures are logged and otherwise ignored.
func record(r *http.Request, sink audit.Sink, e audit.Entry) {
	if sink == nil {
		return
	}
	if err := sink.Record(r.Context(), e); err != nil {
		logger.Error("audit", slog.String("category", e.Category), slog.Any("err", err))
	}
}
