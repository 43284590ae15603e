package forms

import (
	"context"
	"sync"
	"time"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// Store is the persistence interface for form submissions.
type Store interface {
	Get(ctx context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) (Submission, error)
	// Save upserts the latest submission. Overwriting a submission whose
	// verdict was requires_changes bumps the version and retains the prior
	// one in history.
	Save(ctx context.Context, sub Submission) error
	ListByApplication(ctx context.Context, appID domain.ApplicationID) ([]Submission, error)
	ListVersions(ctx context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) ([]Submission, error)
}

type submissionKey struct {
	app      domain.ApplicationID
	template domain.FormTemplateID
}

// InMemoryStore keeps submissions and their version history in memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	latest   map[submissionKey]Submission
	versions map[submissionKey][]Submission
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		latest:   make(map[submissionKey]Submission),
		versions: make(map[submissionKey][]Submission),
	}
}

func (s *InMemoryStore) Get(_ context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.latest[submissionKey{appID, templateID}]; ok {
		return sub, nil
	}
	return Submission{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := submissionKey{sub.ApplicationID, sub.TemplateID}
	if prev, ok := s.latest[key]; ok {
		sub.Version = prev.Version
		if prev.Assessed == domain.AssessmentRequiresChanges {
			s.versions[key] = append(s.versions[key], prev)
			sub.Version = prev.Version + 1
		}
	} else if sub.Version == 0 {
		sub.Version = 1
	}
	sub.UpdatedAt = time.Now()
	s.latest[key] = sub
	return nil
}

func (s *InMemoryStore) ListByApplication(_ context.Context, appID domain.ApplicationID) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Submission
	for key, sub := range s.latest {
		if key.app == appID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListVersions(_ context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := submissionKey{appID, templateID}
	out := append([]Submission(nil), s.versions[key]...)
	if latest, ok := s.latest[key]; ok {
		out = append(out, latest)
	}
	return out, nil
}
