// Package entitlement decides whether a single report view is admitted.
package entitlement

// Decision is the outcome for one "view a report" action.
type Decision string

const (
	Admit                 Decision = "admit"
	DenyRedirectToLogin   Decision = "deny_login"
	DenyRedirectToUpgrade Decision = "deny_upgrade"
)

// Identity is either anonymous (empty email) or an authenticated account.
type Identity struct {
	Email string
}

func (i Identity) Anonymous() bool {
	return i.Email == ""
}

// Policy holds the monthly view limits for the metered tiers.
type Policy struct {
	AnonymousViews int
	FreeViews      int
}

// DefaultPolicy is the shipped quota: 2 views/month anonymous, 5 for
// signed-in accounts without a subscription, unlimited for Pro.
func DefaultPolicy() Policy {
	return Policy{AnonymousViews: 2, FreeViews: 5}
}

// Evaluate decides admission for one report view. metered reports whether
// the caller must increment the identity's counter by exactly one on admit;
// Pro admits never touch the counter.
func (p Policy) Evaluate(id Identity, used int, subscriptionActive bool) (decision Decision, metered bool) {
	if id.Anonymous() {
		if used < p.AnonymousViews {
			return Admit, true
		}
		return DenyRedirectToLogin, false
	}

	if subscriptionActive {
		return Admit, false
	}

	if used < p.FreeViews {
		return Admit, true
	}
	return DenyRedirectToUpgrade, false
}
