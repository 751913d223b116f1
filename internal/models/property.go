package models

import "time"

// Property is a rental property managed by a member.
type Property struct {
	ID          string    `json:"id" bson:"id"`
	OwnerID     string    `json:"ownerId" bson:"ownerId"`
	Name        string    `json:"name" bson:"name"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
	Units       int       `json:"units" bson:"units"`
	MonthlyRent float64   `json:"monthlyRent" bson:"monthlyRent"`
	PhotoKey    string    `json:"photoKey,omitempty" bson:"photoKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}
