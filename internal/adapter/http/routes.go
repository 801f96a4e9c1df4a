package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. adminOnly
// guards the /api/v1/admin group.
func MountRoutes(r chi.Router, h *Handlers, adminOnly func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "v1"})
		})

		// Task escrow
		r.Post("/escrows", h.OpenEscrow)
		r.Get("/escrows", h.ListEscrows)
		r.Get("/escrows/{poster}/{taskID}", h.GetEscrow)
		r.Post("/escrows/{poster}/{taskID}/assign", h.AssignEscrow)
		r.Post("/escrows/{poster}/{taskID}/complete", h.CompleteEscrow)
		r.Post("/escrows/{poster}/{taskID}/cancel", h.CancelEscrow)

		// Agent wallets
		r.Post("/wallets", h.CreateWallet)
		r.Get("/wallets", h.ListWallets)
		r.Get("/wallets/{agent}", h.GetWallet)
		r.Post("/wallets/{agent}/distribute", h.DistributeWallet)
		r.Post("/wallets/{agent}/spend", h.SpendWallet)

		// Acquisitions
		r.Post("/acquisitions", h.ProposeAcquisition)
		r.Get("/acquisitions", h.ListAcquisitions)
		r.Get("/acquisitions/{buyer}/{target}", h.GetAcquisition)
		r.Post("/acquisitions/{buyer}/{target}/sign-buyer", h.SignBuyer)
		r.Post("/acquisitions/{buyer}/{target}/sign-target", h.SignTarget)
		r.Post("/acquisitions/{buyer}/{target}/execute", h.ExecuteAcquisition)

		// Human trust registry
		r.Get("/humans", h.ListHumans)
		r.Get("/humans/{human}", h.GetHuman)
		r.Get("/humans/{human}/ban-check", h.CheckBan)
		r.Post("/humans/{human}/flag", h.FlagHuman)

		// Accounts, journal and events
		r.Get("/accounts/{identity}", h.GetAccount)
		r.Get("/accounts/{identity}/entries", h.ListAccountEntries)
		r.Get("/stats", h.GetStats)
		r.Get("/events", h.ListEvents)

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/humans/{human}/ban", h.AdminBanHuman)
			r.Post("/humans/{human}/unban", h.AdminUnbanHuman)
			r.Post("/accounts/{identity}/deposit", h.AdminDeposit)
		})
	})
}
