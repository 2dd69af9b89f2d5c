package services

import (
	"context"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EarnInput is the request for a point grant. Amount comes from the
// out-of-scope pricing layer; the ledger never computes point values.
type EarnInput struct {
	CustomerID     primitive.ObjectID
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// RedeemInput is the request for a point redemption.
type RedeemInput struct {
	CustomerID     primitive.ObjectID
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// ConvertInput is the request for a points-to-currency conversion. The
// ledger only debits points; Rate and Currency travel into the
// transaction metadata for the out-of-scope settlement side.
type ConvertInput struct {
	CustomerID     primitive.ObjectID
	Points         int64
	Rate           decimal.Decimal
	Currency       string
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// LedgerResult is the outcome of a balance-affecting operation. Duplicate
// marks an idempotent replay: Transaction is the prior record and no new
// effect was applied.
type LedgerResult struct {
	Transaction *models.Transaction `json:"transaction"`
	NewBalance  int64               `json:"newBalance"`
	Duplicate   bool                `json:"duplicate,omitempty"`
}

// ConvertResult is a LedgerResult plus the computed currency amount.
type ConvertResult struct {
	LedgerResult
	CurrencyAmount decimal.Decimal `json:"currencyAmount"`
	Currency       string          `json:"currency"`
}

// LedgerService defines the ledger operations exposed to the HTTP layer
// and the scheduled jobs.
type LedgerService interface {
	Earn(ctx context.Context, in EarnInput) (*LedgerResult, error)
	Redeem(ctx context.Context, in RedeemInput) (*LedgerResult, error)
	CancelRedemption(ctx context.Context, originalIdempotencyKey string, metadata map[string]interface{}) (*LedgerResult, error)
	Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error)
	GetBalance(ctx context.Context, customerID primitive.ObjectID, windowDays int) (*models.Balance, error)
	GetTransactions(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]*models.Transaction, error)
	// ExpireDueLots is the expiry sweep: each due lot is processed in its
	// own small unit of work so one failure cannot block the batch.
	ExpireDueLots(ctx context.Context) (*models.SweepReport, error)
}

// TierService defines tier evaluation operations.
type TierService interface {
	// CheckUpgrade evaluates the customer against the next tier up. It is
	// read-only unless apply is set.
	CheckUpgrade(ctx context.Context, customerID primitive.ObjectID, apply bool) (*models.EligibilityReport, error)
	// EvaluateDowngrades runs the monthly downgrade over every tier that
	// has a downgrade rule configured.
	EvaluateDowngrades(ctx context.Context, now time.Time) (*models.DowngradeReport, error)
}

// AuthService defines admin authentication operations.
type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.AdminUser, error)
	Login(ctx context.Context, req *models.LoginRequest) (string, error)
}
