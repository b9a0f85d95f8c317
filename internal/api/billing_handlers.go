package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/TickerVal-io/tickerval/internal/auth"
	"github.com/TickerVal-io/tickerval/internal/billing"
)

// CreateCheckoutHandler starts a hosted checkout for the signed-in account.
func (api *Api) CreateCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	email, _ := auth.EmailFromContext(r.Context())

	if api.store.IsActive(email) {
		http.Error(w, "Subscription already active", http.StatusConflict)
		return
	}

	link, err := api.billing.CreateCheckoutSession(r.Context(), email)
	if err != nil {
		log.Printf("[BILLING] Failed to create checkout session for %s: %v", email, err)
		http.Error(w, "Failed to create checkout session", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

// VerifyCheckoutHandler confirms a finished checkout belongs to the caller
// and flips the account to active without waiting on webhook delivery. The
// webhook remains the source of truth for period bounds; this just closes
// the gap between payment and first delivery.
func (api *Api) VerifyCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	email, _ := auth.EmailFromContext(r.Context())

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	sess, err := api.billing.VerifyCheckoutSession(r.Context(), sessionID, email)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrIdentityMismatch):
			log.Printf("[BILLING] Checkout session %s claimed by wrong account %s", sessionID, email)
			http.Error(w, "Checkout session does not belong to this account", http.StatusForbidden)
		case errors.Is(err, billing.ErrPaymentIncomplete):
			http.Error(w, "Payment not completed", http.StatusPaymentRequired)
		default:
			log.Printf("[BILLING] Failed to verify checkout session %s: %v", sessionID, err)
			http.Error(w, "Failed to verify checkout session", http.StatusBadGateway)
		}
		return
	}

	if err := api.reconciler.HandleCheckoutVerified(email, api.Config.Stripe.PriceIDProMonthly, sess); err != nil {
		log.Printf("[BILLING] Failed to activate subscription for %s: %v", email, err)
		http.Error(w, "Failed to activate subscription", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "active"})
}
