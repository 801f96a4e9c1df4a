package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/logger"
)

const maxRequestBodySize = 64 << 10 // 64 KB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit. An empty body
// decodes to the zero value so bodiless POSTs work.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return v, true
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", domain.KindValidation)
		default:
			writeError(w, http.StatusBadRequest, "invalid request body", domain.KindValidation)
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// caller returns the identity from X-Caller-ID, writing 401 when it is absent.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := logger.Caller(r.Context())
	if id == "" {
		writeError(w, http.StatusUnauthorized, "X-Caller-ID header is required", domain.KindAuthorization)
		return "", false
	}
	return id, true
}

// queryLimit parses the optional "limit" query parameter.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", domain.KindValidation)
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// kindStatus maps error kinds to HTTP statuses.
var kindStatus = map[string]int{
	domain.KindAuthorization:     http.StatusForbidden,
	domain.KindInvalidState:      http.StatusConflict,
	domain.KindInsufficientFunds: http.StatusUnprocessableEntity,
	domain.KindExpired:           http.StatusGone,
	domain.KindValidation:        http.StatusBadRequest,
	domain.KindBanned:            http.StatusForbidden,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindConflict:          http.StatusConflict,
}

// writeDomainError writes err with the status of its kind. Internal errors are
// logged and reported without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", domain.KindInternal)
		return
	}
	writeError(w, status, err.Error(), kind)
}
