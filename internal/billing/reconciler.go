package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TickerVal-io/tickerval/internal/metrics"
	"github.com/TickerVal-io/tickerval/internal/subscription"
	"github.com/rs/zerolog/log"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
)

// EmailResolver maps a provider customer ID to the account email.
type EmailResolver func(ctx context.Context, customerID string) (string, error)

// Reconciler applies payment-provider events to the subscription store.
// Every handler writes the event's own snapshot of status and period, so
// re-applying a delivered event is a no-op and replays are safe.
type Reconciler struct {
	store        subscription.Store
	resolveEmail EmailResolver
}

// NewReconciler creates a Reconciler. A nil resolver uses the Stripe
// customer API.
func NewReconciler(store subscription.Store, resolver EmailResolver) *Reconciler {
	if resolver == nil {
		resolver = stripeCustomerEmail
	}
	return &Reconciler{store: store, resolveEmail: resolver}
}

// HandleCheckoutVerified activates the subscription confirmed by the
// success-page poll. The session's own creation time feeds the stale
// guard: the session predates payment, so the provider's initial
// webhooks (created at payment) are never rejected as older than this
// write and still land their plan and period bounds.
func (rc *Reconciler) HandleCheckoutVerified(email, planID string, sess *stripelib.CheckoutSession) error {
	return rc.apply("checkout.verified", email, subscription.Change{
		Status:    subscription.StatusActive,
		PlanID:    planID,
		Source:    subscription.SourceCheckout,
		EventTime: time.Unix(sess.Created, 0).UTC(),
	})
}

// HandleCheckoutCompleted activates the subscription paid for in a
// completed checkout session.
func (rc *Reconciler) HandleCheckoutCompleted(ctx context.Context, sess CheckoutSession, eventTime time.Time) error {
	if sess.Mode != "" && sess.Mode != "subscription" {
		log.Info().Str("session_id", sess.ID).Str("mode", sess.Mode).Msg("checkout session ignored (not a subscription)")
		return nil
	}

	email := sess.Email()
	if email == "" {
		var err error
		email, err = rc.resolveEmail(ctx, sess.Customer)
		if err != nil {
			return fmt.Errorf("resolve customer email: %w", err)
		}
	}
	if email == "" {
		return fmt.Errorf("checkout session %s carries no customer email", sess.ID)
	}

	return rc.apply("checkout.session.completed", email, subscription.Change{
		Status:    subscription.StatusActive,
		Source:    subscription.SourceWebhook,
		EventTime: eventTime,
	})
}

// HandleSubscriptionChanged applies created/updated events.
func (rc *Reconciler) HandleSubscriptionChanged(ctx context.Context, kind string, sub Subscription, eventTime time.Time) error {
	email, err := rc.resolveEmail(ctx, sub.Customer)
	if err != nil {
		return fmt.Errorf("resolve customer email: %w", err)
	}

	ch := subscription.Change{
		Status:    mapStatus(sub.Status),
		PlanID:    sub.FirstPriceID(),
		Source:    subscription.SourceWebhook,
		EventTime: eventTime,
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		ch.CurrentPeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		ch.CurrentPeriodEnd = &t
	}

	return rc.apply(kind, email, ch)
}

// HandleSubscriptionDeleted marks the subscription canceled. The record is
// kept; a fresh checkout re-enters the active state.
func (rc *Reconciler) HandleSubscriptionDeleted(ctx context.Context, sub Subscription, eventTime time.Time) error {
	email, err := rc.resolveEmail(ctx, sub.Customer)
	if err != nil {
		return fmt.Errorf("resolve customer email: %w", err)
	}

	return rc.apply("customer.subscription.deleted", email, subscription.Change{
		Status:    subscription.StatusCanceled,
		Source:    subscription.SourceWebhook,
		EventTime: eventTime,
	})
}

// HandleInvoicePaid reaffirms the active status and advances the paid
// period to the invoice's bounds.
func (rc *Reconciler) HandleInvoicePaid(ctx context.Context, inv Invoice, eventTime time.Time) error {
	email := strings.TrimSpace(inv.CustomerEmail)
	if email == "" {
		var err error
		email, err = rc.resolveEmail(ctx, inv.Customer)
		if err != nil {
			return fmt.Errorf("resolve customer email: %w", err)
		}
	}

	ch := subscription.Change{
		Status:    subscription.StatusActive,
		Source:    subscription.SourceWebhook,
		EventTime: eventTime,
	}
	if inv.PeriodStart > 0 {
		t := time.Unix(inv.PeriodStart, 0).UTC()
		ch.CurrentPeriodStart = &t
	}
	if inv.PeriodEnd > 0 {
		t := time.Unix(inv.PeriodEnd, 0).UTC()
		ch.CurrentPeriodEnd = &t
	}

	return rc.apply("invoice.payment_succeeded", email, ch)
}

// HandleInvoiceFailed records the failure as past_due. Access is not
// revoked here: the record keeps granting until its paid period lapses.
func (rc *Reconciler) HandleInvoiceFailed(ctx context.Context, inv Invoice, eventTime time.Time) error {
	email := strings.TrimSpace(inv.CustomerEmail)
	if email == "" {
		var err error
		email, err = rc.resolveEmail(ctx, inv.Customer)
		if err != nil {
			return fmt.Errorf("resolve customer email: %w", err)
		}
	}

	return rc.apply("invoice.payment_failed", email, subscription.Change{
		Status:    subscription.StatusPastDue,
		Source:    subscription.SourceWebhook,
		EventTime: eventTime,
	})
}

func (rc *Reconciler) apply(kind, email string, ch subscription.Change) error {
	outcome, err := rc.store.Upsert(email, ch)
	if err != nil {
		return fmt.Errorf("upsert subscription for %s: %w", email, err)
	}
	metrics.SubscriptionChangesTotal.WithLabelValues(kind, string(outcome)).Inc()

	// Self-check, not a retry signal: the provider still gets its prompt
	// 2xx regardless of what the re-read says.
	log.Info().
		Str("kind", kind).
		Str("email", email).
		Str("outcome", string(outcome)).
		Bool("active", rc.store.IsActive(email)).
		Msg("subscription change")
	return nil
}

func mapStatus(providerStatus string) subscription.Status {
	switch providerStatus {
	case "active", "trialing":
		return subscription.StatusActive
	case "past_due", "incomplete":
		return subscription.StatusPastDue
	default:
		return subscription.StatusCanceled
	}
}

func stripeCustomerEmail(ctx context.Context, customerID string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", fmt.Errorf("missing customer id")
	}
	params := &stripelib.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		return "", err
	}
	return cust.Email, nil
}
