package application

import (
	"context"
	"sync"
	"time"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// Store is the persistence interface for applications.
type Store interface {
	Get(ctx context.Context, id domain.ApplicationID) (Application, error)
	Save(ctx context.Context, app Application) error
	// UpdateProgress is the single final write of a progress recomputation.
	// Concurrent writers converge because the engine is deterministic for
	// the same snapshot; last write wins.
	UpdateProgress(ctx context.Context, id domain.ApplicationID, step int, status domain.OverallStatus) error
	Archive(ctx context.Context, id domain.ApplicationID) error
}

// InMemoryStore keeps applications in memory for tests and unconfigured
// deployments.
type InMemoryStore struct {
	mu   sync.RWMutex
	apps map[domain.ApplicationID]Application
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{apps: make(map[domain.ApplicationID]Application)}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.ApplicationID) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if app, ok := s.apps[id]; ok {
		return app, nil
	}
	return Application{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, app Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app
	return nil
}

func (s *InMemoryStore) UpdateProgress(_ context.Context, id domain.ApplicationID, step int, status domain.OverallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	app.CurrentStep = step
	app.OverallStatus = status
	app.UpdatedAt = time.Now()
	s.apps[id] = app
	return nil
}

func (s *InMemoryStore) Archive(_ context.Context, id domain.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	app.Archived = true
	app.UpdatedAt = time.Now()
	s.apps[id] = app
	return nil
}
