package repositories

import (
	"context"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnitOfWork scopes a set of reads and writes into one atomic unit. The
// function receives a context that participating repositories recognize:
// on the Mongo implementation it is a session context, so every repository
// call made with it joins the same transaction.
//
// Transactional reports the deployment capability: true when the store
// supports multi-document transactions with rollback, false when the unit
// degrades to best-effort sequential writes (single-node topology). Callers
// that need rollback must check it — the degradation is explicit, never a
// silent behavior change.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Transactional() bool
}

// CustomerRepository defines the interface for customer data operations.
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Customer, error)
	FindByTier(ctx context.Context, tierID primitive.ObjectID) ([]*models.Customer, error)
	FindAll(ctx context.Context, page, limit int) ([]*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	IncrementPoints(ctx context.Context, id primitive.ObjectID, delta int64) error
	UpdateTier(ctx context.Context, id primitive.ObjectID, tierID primitive.ObjectID) error
	Count(ctx context.Context) (int64, error)
}

// PointLotRepository defines the interface for point lot operations.
// FindActiveByCustomer returns active, unexpired lots sorted ascending by
// expiry (ties broken by creation order) — the FIFO consumption order.
type PointLotRepository interface {
	Create(ctx context.Context, lot *models.PointLot) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PointLot, error)
	FindActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) ([]*models.PointLot, error)
	SumActiveByCustomer(ctx context.Context, customerID primitive.ObjectID, asOf time.Time) (int64, error)
	SumExpiringBetween(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) (int64, error)
	FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*models.PointLot, error)
	Update(ctx context.Context, lot *models.PointLot) error
}

// TransactionRepository defines the interface for transaction log operations.
type TransactionRepository interface {
	Create(ctx context.Context, transaction *models.Transaction) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	FindByCustomer(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]*models.Transaction, error)
	// FindCompletedInRange returns completed transactions for a customer with
	// CreatedAt in [from, to), oldest first. Used for period aggregation.
	FindCompletedInRange(ctx context.Context, customerID primitive.ObjectID, from, to time.Time) ([]*models.Transaction, error)
	FindByRefTransaction(ctx context.Context, refID primitive.ObjectID) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) error
	Update(ctx context.Context, transaction *models.Transaction) error
}

// TierRepository defines the interface for tier catalog operations.
// FindAll returns tiers sorted ascending by hierarchy level.
type TierRepository interface {
	Create(ctx context.Context, tier *models.Tier) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Tier, error)
	FindByLevel(ctx context.Context, level int) (*models.Tier, error)
	FindAll(ctx context.Context) ([]*models.Tier, error)
	Update(ctx context.Context, tier *models.Tier) error
}

// TierCriteriaRepository defines the interface for eligibility criteria.
// At most one general and one app-scoped record exist per tier.
type TierCriteriaRepository interface {
	Upsert(ctx context.Context, criteria *models.TierEligibilityCriteria) error
	FindByTierAndApp(ctx context.Context, tierID primitive.ObjectID, appID string) (*models.TierEligibilityCriteria, error)
	FindByTier(ctx context.Context, tierID primitive.ObjectID) ([]*models.TierEligibilityCriteria, error)
}

// ExpirationRulesRepository defines the interface for expiry configuration.
// Create deactivates any previously active record so exactly one stays
// active at a time.
type ExpirationRulesRepository interface {
	Create(ctx context.Context, rules *models.PointsExpirationRules) error
	FindActive(ctx context.Context) (*models.PointsExpirationRules, error)
}

// AdminUserRepository defines the interface for admin account operations.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.AdminUser, error)
}
