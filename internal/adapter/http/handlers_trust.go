package http

import (
	"errors"
	"net/http"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/trust"
)

// FlagHuman handles POST /api/v1/humans/{human}/flag. The caller is the
// reporting agent.
func (h *Handlers) FlagHuman(w http.ResponseWriter, r *http.Request) {
	handleCallerAction("human", h.Trust.Flag)(w, r)
}

// ListHumans handles GET /api/v1/humans?banned=true&limit=.
func (h *Handlers) ListHumans(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	items, err := h.Trust.List(r.Context(), trust.Filter{
		BannedOnly: r.URL.Query().Get("banned") == "true",
		Limit:      limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, items)
}

// GetHuman handles GET /api/v1/humans/{human}.
func (h *Handlers) GetHuman(w http.ResponseWriter, r *http.Request) {
	handleGet("human", h.Trust.Get)(w, r)
}

type banCheckResponse struct {
	Human  string `json:"human"`
	Banned bool   `json:"banned"`
}

// CheckBan handles GET /api/v1/humans/{human}/ban-check. A banned human is a
// successful answer, not an error.
func (h *Handlers) CheckBan(w http.ResponseWriter, r *http.Request) {
	human := urlParam(r, "human")
	err := h.Trust.CheckBan(r.Context(), human)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, banCheckResponse{Human: human})
	case errors.Is(err, domain.ErrBanned):
		writeJSON(w, http.StatusOK, banCheckResponse{Human: human, Banned: true})
	default:
		writeDomainError(w, r, err)
	}
}

// AdminBanHuman handles POST /api/v1/admin/humans/{human}/ban.
func (h *Handlers) AdminBanHuman(w http.ResponseWriter, r *http.Request) {
	handleCallerAction("human", h.Trust.AdminBan)(w, r)
}

// AdminUnbanHuman handles POST /api/v1/admin/humans/{human}/unban.
func (h *Handlers) AdminUnbanHuman(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	rec, err := h.Trust.AdminUnban(r.Context(), who, urlParam(r, "human"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
