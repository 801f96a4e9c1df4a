package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ---------------------------------------------------------------------------
// Generic handler factories
// ---------------------------------------------------------------------------

// writeList writes items as a JSON array, never null.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleGet creates a handler that retrieves a single resource by URL param.
func handleGet[T any](param string, getFn func(ctx context.Context, id string) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), chi.URLParam(r, param))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleCallerCreate creates a handler that decodes a JSON body and runs a
// creation on behalf of the caller.
func handleCallerCreate[Req any, Res any](createFn func(ctx context.Context, caller string, req *Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), who, &req)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleCallerAction creates a handler that decodes a JSON body and applies
// an action by the caller to the resource named by URL param.
func handleCallerAction[Req any, Res any](param string, actFn func(ctx context.Context, caller, id string, req *Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := actFn(r.Context(), who, chi.URLParam(r, param), &req)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
