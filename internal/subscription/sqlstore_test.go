package subscription

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE subscriptions (
			email TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			plan_id TEXT,
			current_period_start TIMESTAMP,
			current_period_end TIMESTAMP,
			source TEXT,
			event_time TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	require.NoError(t, err)
	return db
}

func TestSQLStoreGetUnknown(t *testing.T) {
	s := NewSQLStore(newTestDB(t))
	_, err := s.Get("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.IsActive("nobody@example.com"))
}

func TestSQLStoreUpsertRoundTrip(t *testing.T) {
	s := NewSQLStore(newTestDB(t))

	start := ts("2026-09-01T00:00:00Z")
	end := ts("2026-10-01T00:00:00Z")
	outcome, err := s.Upsert("user@example.com", Change{
		Status:             StatusActive,
		PlanID:             "price_pro_monthly",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		Source:             SourceWebhook,
		EventTime:          ts("2026-09-01T00:00:05Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	rec, err := s.Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", rec.Email)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "price_pro_monthly", rec.PlanID)
	assert.Equal(t, SourceWebhook, rec.Source)
	require.NotNil(t, rec.CurrentPeriodStart)
	require.NotNil(t, rec.CurrentPeriodEnd)
	assert.True(t, rec.CurrentPeriodStart.Equal(start))
	assert.True(t, rec.CurrentPeriodEnd.Equal(end))
	assert.True(t, rec.EventTime.Equal(ts("2026-09-01T00:00:05Z")))
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestSQLStoreUpdateExisting(t *testing.T) {
	s := NewSQLStore(newTestDB(t))

	_, err := s.Upsert("user@example.com", Change{
		Status:    StatusActive,
		PlanID:    "price_pro_monthly",
		Source:    SourceCheckout,
		EventTime: ts("2026-09-01T00:00:00Z"),
	})
	require.NoError(t, err)

	outcome, err := s.Upsert("user@example.com", Change{
		Status:    StatusCanceled,
		Source:    SourceWebhook,
		EventTime: ts("2026-09-02T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	rec, err := s.Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, rec.Status)
	// Fields the change didn't carry survive the update.
	assert.Equal(t, "price_pro_monthly", rec.PlanID)
}

func TestSQLStoreStaleEventIgnored(t *testing.T) {
	s := NewSQLStore(newTestDB(t))

	_, err := s.Upsert("user@example.com", Change{
		Status:    StatusCanceled,
		Source:    SourceWebhook,
		EventTime: ts("2026-09-15T12:00:00Z"),
	})
	require.NoError(t, err)

	outcome, err := s.Upsert("user@example.com", Change{
		Status:    StatusActive,
		Source:    SourceWebhook,
		EventTime: ts("2026-09-15T11:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnoredStale, outcome)

	rec, err := s.Get("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, rec.Status)
}

func TestSQLStoreIsActive(t *testing.T) {
	s := NewSQLStore(newTestDB(t))

	end := time.Now().Add(30 * 24 * time.Hour).UTC()
	_, err := s.Upsert("active@example.com", Change{
		Status:           StatusActive,
		CurrentPeriodEnd: &end,
		EventTime:        time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, s.IsActive("active@example.com"))

	lapsed := time.Now().Add(-24 * time.Hour).UTC()
	_, err = s.Upsert("lapsed@example.com", Change{
		Status:           StatusActive,
		CurrentPeriodEnd: &lapsed,
		EventTime:        time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, s.IsActive("lapsed@example.com"))

	assert.False(t, s.IsActive(""))
}
