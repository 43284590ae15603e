package certification

import (
	"context"
	"sync"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// Reader is the read-side interface the progress engine depends on.
type Reader interface {
	Get(ctx context.Context, id domain.CertificationID) (Certification, error)
}

// InMemoryStore keeps certification definitions in memory. It favors clarity
// over performance and backs unit tests and unconfigured deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[domain.CertificationID]Certification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{certs: make(map[domain.CertificationID]Certification)}
}

func (s *InMemoryStore) Save(_ context.Context, cert Certification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.ID] = cert
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.CertificationID) (Certification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cert, ok := s.certs[id]; ok {
		return cert, nil
	}
	return Certification{}, sentinel.ErrNotFound
}
