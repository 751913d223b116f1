package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rentwise/portal/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
	SetMetadata(ctx context.Context, sub, key string, value interface{}) error
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(col *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{col: col}
}

// UpsertBySub refreshes profile fields from the identity provider. Metadata
// is operator-owned and never overwritten here.
func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	filter := bson.M{"sub": u.Sub}
	update := bson.M{
		"$set": bson.M{
			"email":     u.Email,
			"name":      u.Name,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	updated.Roles = u.Roles
	return &updated, nil
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"sub": sub}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepository) SetMetadata(ctx context.Context, sub, key string, value interface{}) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"sub": sub}, bson.M{"$set": bson.M{"metadata." + key: value, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryUserRepository keeps users in process; used without MongoDB.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{store: map[string]*models.User{}}
}

func (m *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := m.store[u.Sub]
	if !ok {
		cur = &models.User{ID: u.Sub, Sub: u.Sub, CreatedAt: now}
		m.store[u.Sub] = cur
	}
	cur.Email = u.Email
	cur.Name = u.Name
	cur.UpdatedAt = now
	out := copyUser(cur)
	out.Roles = u.Roles
	return out, nil
}

func (m *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[sub]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (m *MemoryUserRepository) SetMetadata(ctx context.Context, sub, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[sub]
	if !ok {
		return ErrNotFound
	}
	if u.Metadata == nil {
		u.Metadata = map[string]interface{}{}
	}
	u.Metadata[key] = value
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
