// Package payments exposes the narrow payment view the progress engine
// needs. Billing and capture live elsewhere; this package only answers
// whether an application's fee is settled.
package payments

import (
	"context"
	"sync"

	"certflow/pkg/domain"
)

// Record is the settlement state of one application's fee.
type Record struct {
	ApplicationID domain.ApplicationID
	FullyPaid     bool
	// RemainingCents is the outstanding balance. A refunded or adjusted
	// payment can leave FullyPaid true with a positive remainder, which
	// still counts as unpaid.
	RemainingCents int64
}

// Settled reports whether the fee step is complete.
func (r Record) Settled() bool {
	return r.FullyPaid && r.RemainingCents == 0
}

// Reader answers the payment predicate for an application. A missing
// record reads as unpaid.
type Reader interface {
	IsFullyPaid(ctx context.Context, appID domain.ApplicationID) (bool, error)
}

// InMemoryStore holds payment records in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.ApplicationID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.ApplicationID]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ApplicationID] = rec
	return nil
}

func (s *InMemoryStore) IsFullyPaid(_ context.Context, appID domain.ApplicationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[appID]
	if !ok {
		return false, nil
	}
	return rec.Settled(), nil
}
