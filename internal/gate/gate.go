// Package gate is the single enforcement point for report views.
package gate

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/TickerVal-io/tickerval/internal/auth"
	"github.com/TickerVal-io/tickerval/internal/entitlement"
	"github.com/TickerVal-io/tickerval/internal/metrics"
	"github.com/TickerVal-io/tickerval/internal/subscription"
	"github.com/TickerVal-io/tickerval/internal/usage"
	"github.com/go-chi/chi/v5"
)

const (
	LoginPath   = "/login"
	UpgradePath = "/upgrade"

	ReasonFreeLimit    = "free_limit"
	ReasonMonthlyLimit = "monthly_limit"
)

type Gate struct {
	policy        entitlement.Policy
	codec         *usage.Codec
	subs          subscription.Store
	secureCookies bool
}

func New(policy entitlement.Policy, codec *usage.Codec, subs subscription.Store, secureCookies bool) *Gate {
	return &Gate{
		policy:        policy,
		codec:         codec,
		subs:          subs,
		secureCookies: secureCookies,
	}
}

// Middleware gates routes that resolve to viewing a specific report. The
// route must carry a {ticker} URL param; a request without one is catalog
// browsing and never consumes quota.
//
// The counter read-then-write is not atomic across concurrent requests
// from the same client. Last write wins; this is a soft quota.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticker := chi.URLParam(r, "ticker")
		if ticker == "" {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		email, _ := auth.EmailFromContext(r.Context())
		identity := entitlement.Identity{Email: email}

		// Invalid or absent counter token reads as zero usage, fresh period.
		used := g.codec.CurrentCount(usage.ReadCookie(r), now)

		active := false
		tier := "anonymous"
		if !identity.Anonymous() {
			// Looked up on every gated request; a store failure reads as
			// not-Pro inside IsActive. Never unlimited on error.
			active = g.subs.IsActive(email)
			if active {
				tier = "pro"
			} else {
				tier = "free"
			}
		}

		decision, metered := g.policy.Evaluate(identity, used, active)
		metrics.GateDecisionsTotal.WithLabelValues(string(decision), tier).Inc()

		switch decision {
		case entitlement.Admit:
			if metered {
				token := g.codec.Encode(usage.PeriodKey(now), used+1)
				usage.SetCookie(w, token, g.secureCookies)
			}
			next.ServeHTTP(w, r)

		case entitlement.DenyRedirectToLogin:
			log.Printf("[GATE] anonymous limit reached, redirecting to login (ticker: %s)", ticker)
			g.redirect(w, r, LoginPath, ReasonFreeLimit)

		case entitlement.DenyRedirectToUpgrade:
			log.Printf("[GATE] monthly limit reached for %s, redirecting to upgrade (ticker: %s)", email, ticker)
			g.redirect(w, r, UpgradePath, ReasonMonthlyLimit)
		}
	})
}

// redirect sends the user to the login/upgrade surface with a reason code
// the front end turns into copy, preserving the original destination.
func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, target, reason string) {
	q := url.Values{}
	q.Set("reason", reason)
	q.Set("next", r.URL.RequestURI())
	http.Redirect(w, r, target+"?"+q.Encode(), http.StatusSeeOther)
}
