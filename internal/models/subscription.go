package models

import "time"

type PlanType string

const (
	PlanClient     PlanType = "client"
	PlanDiscount   PlanType = "discount"
	PlanEnterprise PlanType = "enterprise"
	PlanNone       PlanType = "none"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusNone     SubscriptionStatus = "none"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusCanceled, StatusPastDue, StatusNone:
		return true
	}
	return false
}

// Valid reports whether p is one of the known plan types.
func (p PlanType) Valid() bool {
	switch p {
	case PlanClient, PlanDiscount, PlanEnterprise, PlanNone:
		return true
	}
	return false
}

// Subscription is the single authoritative billing record of a user.
type Subscription struct {
	ID                  string             `bson:"_id,omitempty" json:"id"`
	UserID              string             `bson:"userId" json:"userId"`
	PlanType            PlanType           `bson:"planType" json:"planType"`
	Status              SubscriptionStatus `bson:"status" json:"status"`
	HasAccessPermission bool               `bson:"hasAccessPermission" json:"hasAccessPermission"`
	CurrentPeriodStart  time.Time          `bson:"currentPeriodStart,omitempty" json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd    time.Time          `bson:"currentPeriodEnd,omitempty" json:"currentPeriodEnd,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a copy callers may modify freely.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
