package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransactionType classifies a balance-affecting event.
type TransactionType string

const (
	TransactionTypeEarn    TransactionType = "earn"
	TransactionTypeRedeem  TransactionType = "redeem"
	TransactionTypeExpire  TransactionType = "expire"
	TransactionTypeAdjust  TransactionType = "adjust"
	TransactionTypeConvert TransactionType = "convert"
)

// TransactionStatus is the transaction state machine. A transaction is
// created pending and reaches a terminal state within the same logical
// operation — pending is never observable across requests.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction records one balance-affecting event. Points is signed:
// positive for earn/credit adjust, negative for redeem/expire/convert.
// IdempotencyKey carries a unique index — a replayed request with the same
// key observes the prior record instead of re-applying effects.
type Transaction struct {
	ID               primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	CustomerID       primitive.ObjectID     `bson:"customerId" json:"customerId"`
	Type             TransactionType        `bson:"type" json:"type"`
	Points           int64                  `bson:"points" json:"points"`
	Status           TransactionStatus      `bson:"status" json:"status"`
	IdempotencyKey   string                 `bson:"idempotencyKey" json:"idempotencyKey"`
	RefTransactionID primitive.ObjectID     `bson:"refTransactionId,omitempty" json:"refTransactionId,omitempty"` // prior transaction (cancellations, expiries)
	BalanceBefore    int64                  `bson:"balanceBefore" json:"balanceBefore"`
	BalanceAfter     int64                  `bson:"balanceAfter" json:"balanceAfter"`
	Metadata         map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt        time.Time              `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time              `bson:"updatedAt" json:"updatedAt"`
}

// Terminal reports whether the transaction has left the pending state.
func (s TransactionStatus) Terminal() bool {
	return s != TransactionStatusPending
}
