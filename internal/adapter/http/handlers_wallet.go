package http

import (
	"net/http"

	"github.com/Strob0t/agentledger/internal/domain/wallet"
)

// CreateWallet handles POST /api/v1/wallets. The caller is the agent.
func (h *Handlers) CreateWallet(w http.ResponseWriter, r *http.Request) {
	handleCallerCreate(h.Wallets.Create)(w, r)
}

// ListWallets handles GET /api/v1/wallets?human=&tier=&limit=.
func (h *Handlers) ListWallets(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, err := h.Wallets.List(r.Context(), wallet.Filter{
		Human: q.Get("human"),
		Tier:  wallet.Tier(q.Get("tier")),
		Limit: limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, items)
}

// GetWallet handles GET /api/v1/wallets/{agent}.
func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	handleGet("agent", h.Wallets.Get)(w, r)
}

// DistributeWallet handles POST /api/v1/wallets/{agent}/distribute.
func (h *Handlers) DistributeWallet(w http.ResponseWriter, r *http.Request) {
	handleCallerAction("agent", h.Wallets.Distribute)(w, r)
}

// SpendWallet handles POST /api/v1/wallets/{agent}/spend.
func (h *Handlers) SpendWallet(w http.ResponseWriter, r *http.Request) {
	handleCallerAction("agent", h.Wallets.Spend)(w, r)
}
