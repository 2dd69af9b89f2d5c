package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Customer represents a loyalty program member.
// TotalPoints is denormalized: it must equal the sum of the customer's
// active, non-expired lot amounts once no operation is in flight. Only
// the ledger service mutates it, and only inside a unit of work.
type Customer struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name        string             `bson:"name" json:"name"`
	Email       string             `bson:"email,omitempty" json:"email,omitempty"`
	AppID       string             `bson:"appId,omitempty" json:"appId,omitempty"` // optional app scope for criteria lookups
	TierID      primitive.ObjectID `bson:"tierId,omitempty" json:"tierId,omitempty"`
	TotalPoints int64              `bson:"totalPoints" json:"totalPoints"`
	IsActive    bool               `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}
