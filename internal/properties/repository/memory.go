package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rentwise/portal/internal/models"
)

var ErrNotFound = errors.New("property not found")

// Repository persists properties. Ownership checks live in the service.
type Repository interface {
	Create(ctx context.Context, p *models.Property) (*models.Property, error)
	Get(ctx context.Context, id string) (*models.Property, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Property, error)
	Update(ctx context.Context, p *models.Property) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepo is used without MongoDB and in tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*models.Property
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*models.Property)}
}

func (m *MemoryRepo) Create(_ context.Context, p *models.Property) (*models.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.store[c.ID] = &c
	out := c
	return &out, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*models.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *MemoryRepo) ListByOwner(_ context.Context, ownerID string) ([]*models.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Property, 0)
	for _, p := range m.store {
		if p.OwnerID == ownerID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) Update(_ context.Context, p *models.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[p.ID]
	if !ok {
		return ErrNotFound
	}
	c := *p
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	m.store[p.ID] = &c
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
