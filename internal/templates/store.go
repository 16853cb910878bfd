// Package templates stores information-entry templates: saved source,
// information source and key URL defaults, kept per user.
package templates

import (
	"context"
	"sort"
	"sync"

	"github.com/13879107157/wyclient/model"
)

// Store persists templates. Every operation is scoped to one owner.
type Store interface {
	List(ctx context.Context, ownerID string) ([]model.InfoTemplate, error)
	Get(ctx context.Context, ownerID, id string) (model.InfoTemplate, error)
	Save(ctx context.Context, t model.InfoTemplate) error
	Delete(ctx context.Context, ownerID string, ids []string) (int, error)
	HealthCheck(ctx context.Context) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	byOwner map[string]map[string]model.InfoTemplate
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string]map[string]model.InfoTemplate)}
}

// List returns the owner's templates, oldest first.
func (s *MemoryStore) List(_ context.Context, ownerID string) ([]model.InfoTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.InfoTemplate, 0, len(s.byOwner[ownerID]))
	for _, t := range s.byOwner[ownerID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns one template.
func (s *MemoryStore) Get(_ context.Context, ownerID, id string) (model.InfoTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byOwner[ownerID][id]
	if !ok {
		return model.InfoTemplate{}, errNotFound(id)
	}
	return t, nil
}

// Save inserts or replaces a template.
func (s *MemoryStore) Save(_ context.Context, t model.InfoTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.byOwner[t.OwnerID]
	if !ok {
		owned = make(map[string]model.InfoTemplate)
		s.byOwner[t.OwnerID] = owned
	}
	owned[t.ID] = t
	return nil
}

// Delete removes the listed templates and reports how many existed.
func (s *MemoryStore) Delete(_ context.Context, ownerID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.byOwner[ownerID][id]; ok {
			delete(s.byOwner[ownerID], id)
			n++
		}
	}
	return n, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func errNotFound(id string) error {
	return model.NewNotFoundError("模板不存在: " + id)
}
