package subscription

import (
	"database/sql"
	"log"
	"time"

	"github.com/TickerVal-io/tickerval/internal/database"
)

// SQLStore implements Store over the subscriptions table. This is the
// production backend; MemoryStore exists for tests only.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(email string) (*Record, error) {
	query := database.Rebind(`
		SELECT email, status, plan_id, current_period_start, current_period_end, source, event_time, updated_at
		FROM subscriptions
		WHERE email = ?
	`)

	var (
		rec         Record
		planID      sql.NullString
		periodStart sql.NullTime
		periodEnd   sql.NullTime
		source      sql.NullString
		eventTime   sql.NullTime
	)
	err := s.db.QueryRow(query, email).Scan(
		&rec.Email,
		&rec.Status,
		&planID,
		&periodStart,
		&periodEnd,
		&source,
		&eventTime,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.PlanID = planID.String
	if periodStart.Valid {
		t := periodStart.Time
		rec.CurrentPeriodStart = &t
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		rec.CurrentPeriodEnd = &t
	}
	rec.Source = Source(source.String)
	if eventTime.Valid {
		rec.EventTime = eventTime.Time
	}
	return &rec, nil
}

func (s *SQLStore) Upsert(email string, ch Change) (Outcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var (
		existing = Record{Email: email}
		found    bool
	)
	row := tx.QueryRow(database.Rebind(`
		SELECT email, status, plan_id, current_period_start, current_period_end, source, event_time, updated_at
		FROM subscriptions
		WHERE email = ?
	`), email)

	var (
		planID      sql.NullString
		periodStart sql.NullTime
		periodEnd   sql.NullTime
		source      sql.NullString
		eventTime   sql.NullTime
	)
	err = row.Scan(&existing.Email, &existing.Status, &planID, &periodStart, &periodEnd, &source, &eventTime, &existing.UpdatedAt)
	switch err {
	case nil:
		found = true
		existing.PlanID = planID.String
		if periodStart.Valid {
			t := periodStart.Time
			existing.CurrentPeriodStart = &t
		}
		if periodEnd.Valid {
			t := periodEnd.Time
			existing.CurrentPeriodEnd = &t
		}
		existing.Source = Source(source.String)
		if eventTime.Valid {
			existing.EventTime = eventTime.Time
		}
	case sql.ErrNoRows:
		// first event for this email
	default:
		return "", err
	}

	if found && !ch.EventTime.IsZero() && ch.EventTime.Before(existing.EventTime) {
		return OutcomeIgnoredStale, nil
	}

	merged := existing.merge(ch, time.Now().UTC())

	_, err = tx.Exec(database.Rebind(`
		INSERT INTO subscriptions (email, status, plan_id, current_period_start, current_period_end, source, event_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			status = excluded.status,
			plan_id = excluded.plan_id,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			source = excluded.source,
			event_time = excluded.event_time,
			updated_at = excluded.updated_at
	`),
		merged.Email,
		string(merged.Status),
		merged.PlanID,
		merged.CurrentPeriodStart,
		merged.CurrentPeriodEnd,
		string(merged.Source),
		merged.EventTime,
		merged.UpdatedAt,
	)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (s *SQLStore) IsActive(email string) bool {
	if email == "" {
		return false
	}
	rec, err := s.Get(email)
	if err != nil {
		if err != ErrNotFound {
			// A storage error must read as "not Pro", never as unlimited.
			log.Printf("[SUBS] lookup failed for %s: %v", email, err)
		}
		return false
	}
	return rec.ActiveAt(time.Now())
}
