package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/pkg/logger"
)

var ErrInvalid = errors.New("invalid subscription change")

// Change is a partial update of a subscription row; nil fields are kept.
type Change struct {
	PlanType            *models.PlanType           `json:"planType,omitempty"`
	Status              *models.SubscriptionStatus `json:"status,omitempty"`
	HasAccessPermission *bool                      `json:"hasAccessPermission,omitempty"`
	CurrentPeriodEnd    *time.Time                 `json:"currentPeriodEnd,omitempty"`
}

// Service wraps repository operations and publishes an invalidation after
// every successful write.
type Service struct {
	repo Repository
	ch   invalidation.Channel
}

func NewService(r Repository, ch invalidation.Channel) *Service {
	return &Service{repo: r, ch: ch}
}

func (s *Service) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.repo.GetByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]*models.Subscription, error) {
	return s.repo.List(ctx)
}

// Apply merges c into the user's row, creating it when missing.
func (s *Service) Apply(ctx context.Context, userID string, c Change) (*models.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalid)
	}
	if c.PlanType != nil && !c.PlanType.Valid() {
		return nil, fmt.Errorf("%w: unknown plan type %q", ErrInvalid, *c.PlanType)
	}
	if c.Status != nil && !c.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, *c.Status)
	}
	cur, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = &models.Subscription{
			UserID:             userID,
			PlanType:           models.PlanNone,
			Status:             models.StatusNone,
			CurrentPeriodStart: time.Now().UTC(),
		}
	}
	if c.PlanType != nil {
		cur.PlanType = *c.PlanType
	}
	if c.Status != nil {
		cur.Status = *c.Status
	}
	if c.HasAccessPermission != nil {
		cur.HasAccessPermission = *c.HasAccessPermission
	}
	if c.CurrentPeriodEnd != nil {
		cur.CurrentPeriodEnd = *c.CurrentPeriodEnd
	}
	saved, err := s.repo.Upsert(ctx, cur)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, userID)
	return saved, nil
}

// Revoke clears the access flag without touching the billing status.
func (s *Service) Revoke(ctx context.Context, userID string) (*models.Subscription, error) {
	off := false
	return s.Apply(ctx, userID, Change{HasAccessPermission: &off})
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.announce(ctx, userID)
	return nil
}

// announce failures are logged; readers fall back to the cache TTL.
func (s *Service) announce(ctx context.Context, userID string) {
	if s.ch == nil {
		return
	}
	if err := s.ch.Publish(ctx, userID); err != nil {
		logger.Errorf("subscriptions: %v", err)
	}
}
