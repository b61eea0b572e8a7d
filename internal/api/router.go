package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter constructs the HTTP router with all treasury endpoints
// registered.
func NewRouter(h *HandlerProvider) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/teams/{teamId}/users/{userId}/wallet", h.GetWalletHandler)
	r.Get("/wallets/{walletId}/transactions", h.ListWalletTransactionsHandler)
	r.Post("/wallets/{walletId}/adjust", h.AdjustWalletHandler)
	r.Get("/wallets/{walletId}/audit", h.ValidateWalletHandler)
	r.Post("/wallets/{walletId}/repair", h.RepairWalletHandler)

	r.Post("/events/{eventId}/distribute", h.DistributeEventHandler)

	r.Get("/clubs/{clubId}/account", h.GetClubAccountHandler)

	r.Post("/payments", h.CreatePaymentHandler)
	r.Post("/payments/preview", h.PreviewPaymentHandler)
	r.Get("/payments/{paymentId}", h.GetPaymentHandler)
	r.Post("/payments/{paymentId}/manual", h.ManualPaymentHandler)
	r.Post("/payments/{paymentId}/deductions", h.AdditionalDeductionHandler)

	return r
}
