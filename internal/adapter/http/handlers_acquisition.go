package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/agentledger/internal/domain/acquisition"
)

func agreementKey(r *http.Request) acquisition.Key {
	return acquisition.Key{Buyer: urlParam(r, "buyer"), Target: urlParam(r, "target")}
}

// ProposeAcquisition handles POST /api/v1/acquisitions. The caller is the buyer.
func (h *Handlers) ProposeAcquisition(w http.ResponseWriter, r *http.Request) {
	handleCallerCreate(h.Acquisitions.Propose)(w, r)
}

// ListAcquisitions handles GET /api/v1/acquisitions?agent=&status=&limit=.
func (h *Handlers) ListAcquisitions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := h.Acquisitions.List(r.Context(), acquisition.Filter{
		Agent:  q.Get("agent"),
		Status: acquisition.Status(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, items)
}

// GetAcquisition handles GET /api/v1/acquisitions/{buyer}/{target}.
func (h *Handlers) GetAcquisition(w http.ResponseWriter, r *http.Request) {
	a, err := h.Acquisitions.Get(r.Context(), agreementKey(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SignBuyer handles POST /api/v1/acquisitions/{buyer}/{target}/sign-buyer.
func (h *Handlers) SignBuyer(w http.ResponseWriter, r *http.Request) {
	h.agreementAction(w, r, h.Acquisitions.SignBuyer)
}

// SignTarget handles POST /api/v1/acquisitions/{buyer}/{target}/sign-target.
func (h *Handlers) SignTarget(w http.ResponseWriter, r *http.Request) {
	h.agreementAction(w, r, h.Acquisitions.SignTarget)
}

// ExecuteAcquisition handles POST /api/v1/acquisitions/{buyer}/{target}/execute.
func (h *Handlers) ExecuteAcquisition(w http.ResponseWriter, r *http.Request) {
	h.agreementAction(w, r, h.Acquisitions.Execute)
}

func (h *Handlers) agreementAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, caller string, key acquisition.Key) (*acquisition.Agreement, error),
) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	a, err := fn(r.Context(), who, agreementKey(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
