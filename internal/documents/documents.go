// Package documents counts a student's uploaded artifacts per
// application. Upload handling and object storage are out of scope;
// the progress engine only needs the counts.
package documents

import (
	"context"
	"sync"

	"certflow/pkg/domain"
)

// Counts groups uploads by kind. Documents complete the upload step;
// images and videos complete the evidence step.
type Counts struct {
	Documents int
	Images    int
	Videos    int
}

// Reader reports upload counts for an application. An application with
// no uploads yields zero counts, not an error.
type Reader interface {
	Counts(ctx context.Context, appID domain.ApplicationID) (Counts, error)
}

// InMemoryStore holds upload counts in memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	counts map[domain.ApplicationID]Counts
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{counts: make(map[domain.ApplicationID]Counts)}
}

func (s *InMemoryStore) Save(_ context.Context, appID domain.ApplicationID, c Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[appID] = c
	return nil
}

func (s *InMemoryStore) Counts(_ context.Context, appID domain.ApplicationID) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[appID], nil
}
