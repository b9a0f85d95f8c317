package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/TickerVal-io/tickerval/internal/subscription"
	"github.com/go-chi/chi/v5"
)

// AdminAuthMiddleware guards operator routes with a static token.
func (api *Api) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := api.Config.Admin.Token
		if token == "" {
			http.Error(w, "Admin interface not configured", http.StatusServiceUnavailable)
			return
		}
		provided := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminActivateRequest struct {
	PlanID string `json:"plan_id"`
	// Days the grant lasts; defaults to 31.
	Days int `json:"days"`
}

// AdminActivateHandler grants an account an active subscription without
// going through checkout. Support tool for refunds, comps and testing.
func (api *Api) AdminActivateHandler(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	var req adminActivateRequest
	if r.Body != nil {
		// Body is optional; decode failures fall back to defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Days <= 0 {
		req.Days = 31
	}

	now := time.Now().UTC()
	end := now.AddDate(0, 0, req.Days)
	outcome, err := api.store.Upsert(email, subscription.Change{
		Status:             subscription.StatusActive,
		PlanID:             req.PlanID,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
		Source:             subscription.SourceManual,
		EventTime:          now,
	})
	if err != nil {
		log.Printf("[ADMIN] Failed to activate subscription for %s: %v", email, err)
		http.Error(w, "Failed to activate subscription", http.StatusInternalServerError)
		return
	}

	log.Printf("[ADMIN] Manually activated subscription for %s until %s", email, end.Format(time.RFC3339))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "active",
		"outcome": string(outcome),
	})
}

type snapshotEntry struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// AdminListSnapshotsHandler lists the archived report snapshots for a
// ticker with short-lived download links.
func (api *Api) AdminListSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if api.archive == nil {
		http.Error(w, "Report archival not configured", http.StatusServiceUnavailable)
		return
	}
	ticker := chi.URLParam(r, "ticker")

	keys, err := api.archive.ListSnapshots(r.Context(), ticker)
	if err != nil {
		log.Printf("[ADMIN] Failed to list snapshots for %s: %v", ticker, err)
		http.Error(w, "Failed to list snapshots", http.StatusBadGateway)
		return
	}

	entries := make([]snapshotEntry, 0, len(keys))
	for _, key := range keys {
		url, err := api.archive.PresignSnapshot(r.Context(), key, 15*time.Minute)
		if err != nil {
			log.Printf("[ADMIN] Failed to presign snapshot %s: %v", key, err)
			http.Error(w, "Failed to presign snapshot", http.StatusBadGateway)
			return
		}
		entries = append(entries, snapshotEntry{Key: key, URL: url})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// AdminGetSubscriptionHandler returns the stored record for an account.
func (api *Api) AdminGetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	rec, err := api.store.Get(email)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			http.Error(w, "No subscription on record", http.StatusNotFound)
			return
		}
		log.Printf("[ADMIN] Failed to load subscription for %s: %v", email, err)
		http.Error(w, "Failed to load subscription", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}
