package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rentwise/portal/internal/models"
)

// MemoryRepository is an in-process Repository used when MongoDB is not
// configured and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: map[string]*models.Subscription{}}
}

func (m *MemoryRepository) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store[userID].Clone(), nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, s *models.Subscription) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	c := s.Clone()
	if prev, ok := m.store[s.UserID]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	} else {
		c.ID = uuid.NewString()
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.store[s.UserID] = c
	return c.Clone(), nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Subscription, 0, len(m.store))
	for _, s := range m.store {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryRepository) DeleteByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[userID]; !ok {
		return ErrNotFound
	}
	delete(m.store, userID)
	return nil
}
