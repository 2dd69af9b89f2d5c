package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LotStatus is the lifecycle state of a point lot.
type LotStatus string

const (
	LotStatusActive   LotStatus = "active"
	LotStatusRedeemed LotStatus = "redeemed"
	LotStatusExpired  LotStatus = "expired"
)

// PointLot is a single dated grant of points with its own expiry — the unit
// of FIFO consumption. Lots are created only by Earn (and by redemption
// cancellation) and are never deleted: redemption and expiry flip the status
// instead so the audit trail survives.
type PointLot struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CustomerID     primitive.ObjectID `bson:"customerId" json:"customerId"`
	Amount         int64              `bson:"amount" json:"amount"`                 // remaining points, >= 0 while active
	OriginalAmount int64              `bson:"originalAmount" json:"originalAmount"` // as granted
	Status         LotStatus          `bson:"status" json:"status"`
	EarnedAt       time.Time          `bson:"earnedAt" json:"earnedAt"`
	ExpiresAt      time.Time          `bson:"expiresAt" json:"expiresAt"`
	TransactionID  primitive.ObjectID `bson:"transactionId" json:"transactionId"` // originating earn transaction
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}
