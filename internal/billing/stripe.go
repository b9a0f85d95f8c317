package billing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/skip2/go-qrcode"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
)

var (
	// ErrIdentityMismatch means the session belongs to a different customer
	// than the caller. Never activate across identities.
	ErrIdentityMismatch = errors.New("checkout session does not belong to this account")

	ErrPaymentIncomplete = errors.New("checkout session is not paid")
)

// Init wires the Stripe API key.
func Init(secretKey string) {
	stripelib.Key = secretKey
}

// CheckoutLink is what the front end needs to send a user to the hosted
// payment page.
type CheckoutLink struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	QRCode    string `json:"qr_code,omitempty"` // base64 PNG of the URL
}

// Client creates and verifies checkout sessions for the Pro plan.
type Client struct {
	priceID    string
	successURL string
	cancelURL  string

	// seam for tests; defaults to the Stripe API
	getSession func(id string) (*stripelib.CheckoutSession, error)
}

func NewClient(priceID, successURL, cancelURL string) *Client {
	return &Client{
		priceID:    priceID,
		successURL: successURL,
		cancelURL:  cancelURL,
		getSession: fetchSession,
	}
}

// CreateCheckoutSession starts a hosted checkout for the given account.
// The account is ensured to exist as a provider-side customer keyed by
// email before the session is created.
func (c *Client) CreateCheckoutSession(ctx context.Context, email string) (*CheckoutLink, error) {
	if c.priceID == "" {
		return nil, fmt.Errorf("billing not configured: missing price id")
	}

	customerID, err := c.ensureCustomer(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare billing for %s: %w", email, err)
	}

	params := &stripelib.CheckoutSessionParams{
		Mode:     stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		Customer: stripelib.String(customerID),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(c.priceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SuccessURL: stripelib.String(c.successURL),
		CancelURL:  stripelib.String(c.cancelURL),
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	link := &CheckoutLink{SessionID: sess.ID, URL: sess.URL}

	// QR of the payment page, for the "scan to pay on your phone" flow.
	png, err := qrcode.Encode(sess.URL, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[BILLING] Warning: failed to generate checkout QR code: %v", err)
	} else {
		link.QRCode = base64.StdEncoding.EncodeToString(png)
	}

	return link, nil
}

// VerifyCheckoutSession confirms the session paid out and that its
// customer email matches the authenticated identity, returning the
// verified session. The identity check prevents one account from claiming
// another's paid session.
func (c *Client) VerifyCheckoutSession(ctx context.Context, sessionID, email string) (*stripelib.CheckoutSession, error) {
	sess, err := c.getSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}

	if sess.PaymentStatus != stripelib.CheckoutSessionPaymentStatusPaid {
		return nil, ErrPaymentIncomplete
	}

	sessionEmail := ""
	if sess.CustomerDetails != nil {
		sessionEmail = sess.CustomerDetails.Email
	}
	if sessionEmail == "" {
		sessionEmail = sess.CustomerEmail
	}
	if sessionEmail == "" || !strings.EqualFold(sessionEmail, email) {
		return nil, ErrIdentityMismatch
	}

	return sess, nil
}

// ensureCustomer finds or creates a Stripe customer for the given email.
func (c *Client) ensureCustomer(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("missing email")
	}

	listParams := &stripelib.CustomerListParams{Email: stripelib.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripelib.Int64(1)
	iter := customer.List(listParams)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", err
	}

	params := &stripelib.CustomerParams{
		Email: stripelib.String(email),
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func fetchSession(id string) (*stripelib.CheckoutSession, error) {
	return session.Get(id, &stripelib.CheckoutSessionParams{})
}
