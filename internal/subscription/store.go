package subscription

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("subscription not found")

// Outcome reports what an Upsert did with a change.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeIgnoredStale Outcome = "ignored_stale"
)

// Store is the source of truth for "is this account Pro".
//
// Upsert merges the change into any existing record (creating one if
// absent) and stamps UpdatedAt. A change carrying an event time older than
// the stored one is not applied; the caller gets OutcomeIgnoredStale so
// out-of-order webhook deliveries cannot resurrect a canceled subscription.
type Store interface {
	Get(email string) (*Record, error)
	Upsert(email string, ch Change) (Outcome, error)
	IsActive(email string) bool
}

// MemoryStore is an in-memory Store for tests. It must not back a
// production deployment; restarts silently forget every subscription.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Upsert(email string, ch Change) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.records[email]
	if ok && !ch.EventTime.IsZero() && ch.EventTime.Before(existing.EventTime) {
		return OutcomeIgnoredStale, nil
	}
	if !ok {
		existing = Record{Email: email}
	}
	s.records[email] = existing.merge(ch, now)
	return OutcomeApplied, nil
}

func (s *MemoryStore) IsActive(email string) bool {
	if email == "" {
		return false
	}
	rec, err := s.Get(email)
	if err != nil {
		return false
	}
	return rec.ActiveAt(time.Now())
}
