package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/event"
)

// GetAccount handles GET /api/v1/accounts/{identity}.
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	handleGet("identity", h.Ledger.Balance)(w, r)
}

// ListAccountEntries handles GET /api/v1/accounts/{identity}/entries?limit=.
func (h *Handlers) ListAccountEntries(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), urlParam(r, "identity"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, entries)
}

// GetStats handles GET /api/v1/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Ledger.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListEvents handles GET /api/v1/events?subject=&type=a,b&after=RFC3339&limit=.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := event.Filter{Subject: q.Get("subject"), Limit: limit}
	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			f.Types = append(f.Types, event.Type(strings.TrimSpace(t)))
		}
	}
	if raw := q.Get("after"); raw != "" {
		after, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp", domain.KindValidation)
			return
		}
		f.After = &after
	}
	events, err := h.Ledger.Events(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, events)
}

// AdminDeposit handles POST /api/v1/admin/accounts/{identity}/deposit.
func (h *Handlers) AdminDeposit(w http.ResponseWriter, r *http.Request) {
	handleCallerAction("identity", h.Ledger.Deposit)(w, r)
}
