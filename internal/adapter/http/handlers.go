package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/agentledger/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Escrows      *service.EscrowService
	Wallets      *service.WalletService
	Acquisitions *service.AcquisitionService
	Trust        *service.TrustService
	Ledger       *service.LedgerService

	// Checks are probed by /health, keyed by component name.
	Checks map[string]Pinger
}

// NewHandlers wires handlers to the ledger services.
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Escrows:      svc.Escrow,
		Wallets:      svc.Wallet,
		Acquisitions: svc.Acquisition,
		Trust:        svc.Trust,
		Ledger:       svc.Ledger,
		Checks:       map[string]Pinger{},
	}
}

type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// Health reports "ok" when every registered check passes and 503 otherwise.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Components: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for name, c := range h.Checks {
		if err := c.Ping(ctx); err != nil {
			status.Components[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Components[name] = "ok"
	}
	writeJSON(w, code, status)
}
