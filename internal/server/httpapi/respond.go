package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/server/api"
)

const maxBodyBytes = 1 << 20

var errBodyNotObject = common.NewValidationError("body", "type", "object")

// decodeDocument reads a JSON object body. An empty body is an empty document.
func decodeDocument(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, common.NewValidationError("body", "max", "1MiB")
		}
		return nil, errBodyNotObject
	}
	if doc == nil {
		return nil, errBodyNotObject
	}
	return doc, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, s)
}

// writeError renders err according to its outcome kind.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	body := map[string]any{"error": kind.String()}

	switch kind {
	case common.KindValidation:
		body["message"] = "Invalid input"
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			body["violations"] = api.Violations(ve)
		}
		writeJSON(w, http.StatusBadRequest, body)
	case common.KindConflict:
		body["message"] = err.Error()
		var ce *common.ConflictError
		if errors.As(err, &ce) {
			body["field"] = ce.Field
			body["value"] = ce.Value
		}
		writeJSON(w, http.StatusConflict, body)
	case common.KindUnknown:
		body["message"] = "Not found"
		writeJSON(w, http.StatusNotFound, body)
	case common.KindWrongCredentials:
		body["message"] = "Authentication failed"
		writeJSON(w, http.StatusUnauthorized, body)
	default:
		h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body["message"] = "Internal server error"
		writeJSON(w, http.StatusInternalServerError, body)
	}
}
