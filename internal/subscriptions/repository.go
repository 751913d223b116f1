// Package subscriptions persists subscription rows and announces changes.
package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/rentwise/portal/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("subscription not found")

// Repository provides subscription persistence keyed by user id.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (*models.Subscription, error)
	Upsert(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	List(ctx context.Context) ([]*models.Subscription, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// MongoRepository implements Repository using a Mongo collection with a
// unique index on userId.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (r *MongoRepository) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var s models.Subscription
	opts := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if err := r.col.FindOne(ctx, bson.M{"userId": userID}, opts).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) Upsert(ctx context.Context, s *models.Subscription) (*models.Subscription, error) {
	now := time.Now().UTC()
	s.UpdatedAt = now
	set := bson.M{
		"planType":            s.PlanType,
		"status":              s.Status,
		"hasAccessPermission": s.HasAccessPermission,
		"currentPeriodStart":  s.CurrentPeriodStart,
		"currentPeriodEnd":    s.CurrentPeriodEnd,
		"updatedAt":           s.UpdatedAt,
	}
	update := bson.M{"$set": set, "$setOnInsert": bson.M{"createdAt": now}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.Subscription
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"userId": s.UserID}, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoRepository) List(ctx context.Context) ([]*models.Subscription, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "userId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Subscription{}
	for cur.Next(ctx) {
		var s models.Subscription
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, cur.Err()
}

func (r *MongoRepository) DeleteByUser(ctx context.Context, userID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
