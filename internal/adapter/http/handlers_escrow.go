package http

import (
	"net/http"

	"github.com/Strob0t/agentledger/internal/domain/escrow"
)

type agentRequest struct {
	Agent string `json:"agent"`
}

func escrowKey(r *http.Request) escrow.Key {
	return escrow.Key{Poster: urlParam(r, "poster"), TaskID: urlParam(r, "taskID")}
}

// OpenEscrow handles POST /api/v1/escrows.
func (h *Handlers) OpenEscrow(w http.ResponseWriter, r *http.Request) {
	handleCallerCreate(h.Escrows.Open)(w, r)
}

// ListEscrows handles GET /api/v1/escrows?poster=&agent=&status=&limit=.
func (h *Handlers) ListEscrows(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := h.Escrows.List(r.Context(), escrow.Filter{
		Poster: q.Get("poster"),
		Agent:  q.Get("agent"),
		Status: escrow.Status(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, items)
}

// GetEscrow handles GET /api/v1/escrows/{poster}/{taskID}.
func (h *Handlers) GetEscrow(w http.ResponseWriter, r *http.Request) {
	e, err := h.Escrows.Get(r.Context(), escrowKey(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// AssignEscrow handles POST /api/v1/escrows/{poster}/{taskID}/assign.
func (h *Handlers) AssignEscrow(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[agentRequest](w, r)
	if !ok {
		return
	}
	e, err := h.Escrows.Assign(r.Context(), who, escrowKey(r), req.Agent)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CompleteEscrow handles POST /api/v1/escrows/{poster}/{taskID}/complete.
func (h *Handlers) CompleteEscrow(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[agentRequest](w, r)
	if !ok {
		return
	}
	e, err := h.Escrows.Complete(r.Context(), who, escrowKey(r), req.Agent)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CancelEscrow handles POST /api/v1/escrows/{poster}/{taskID}/cancel.
func (h *Handlers) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	e, err := h.Escrows.Cancel(r.Context(), who, escrowKey(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
