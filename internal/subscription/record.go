package subscription

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

// Source records where a subscription change came from. Informational only.
type Source string

const (
	SourceCheckout Source = "checkout"
	SourceWebhook  Source = "webhook"
	SourceManual   Source = "manual"
)

// Record is the stored subscription state for one account, keyed by email.
type Record struct {
	Email              string     `json:"email"`
	Status             Status     `json:"status"`
	PlanID             string     `json:"plan_id"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	Source             Source     `json:"source"`
	EventTime          time.Time  `json:"event_time"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the record grants unlimited access at the given
// time: status active with the paid period still open. A past_due record
// keeps access until its paid period lapses (payment-failed grace), but
// never without a period bound.
func (r *Record) ActiveAt(now time.Time) bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case StatusActive:
		return r.CurrentPeriodEnd == nil || r.CurrentPeriodEnd.After(now)
	case StatusPastDue:
		return r.CurrentPeriodEnd != nil && r.CurrentPeriodEnd.After(now)
	default:
		return false
	}
}

// Change is a partial update to a Record. Zero-valued fields are left
// untouched on merge; handlers always write the event's own snapshot of
// status and period rather than toggling relative state.
type Change struct {
	Status             Status
	PlanID             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	Source             Source
	EventTime          time.Time
}

func (r Record) merge(ch Change, now time.Time) Record {
	if ch.Status != "" {
		r.Status = ch.Status
	}
	if ch.PlanID != "" {
		r.PlanID = ch.PlanID
	}
	if ch.CurrentPeriodStart != nil {
		r.CurrentPeriodStart = ch.CurrentPeriodStart
	}
	if ch.CurrentPeriodEnd != nil {
		r.CurrentPeriodEnd = ch.CurrentPeriodEnd
	}
	if ch.Source != "" {
		r.Source = ch.Source
	}
	if !ch.EventTime.IsZero() {
		r.EventTime = ch.EventTime
	} else {
		r.EventTime = now
	}
	r.UpdatedAt = now
	return r
}
