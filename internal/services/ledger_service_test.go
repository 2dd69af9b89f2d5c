package services

import (
	"context"
	"testing"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ledgerFixture struct {
	store     *memory.Store
	customers *memory.CustomerRepository
	lots      *memory.PointLotRepository
	txs       *memory.TransactionRepository
	tiers     *memory.TierRepository
	rules     *memory.ExpirationRulesRepository
	service   *LedgerServiceImpl
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memory.NewStore()
	f := &ledgerFixture{
		store:     store,
		customers: memory.NewCustomerRepository(store),
		lots:      memory.NewPointLotRepository(store),
		txs:       memory.NewTransactionRepository(store),
		tiers:     memory.NewTierRepository(store),
		rules:     memory.NewExpirationRulesRepository(store),
	}
	f.service = NewLedgerService(
		memory.NewUnitOfWork(store),
		f.customers, f.lots, f.txs, f.tiers, f.rules,
		audit.Discard{},
		config.LedgerConfig{
			DefaultLifetimeDays:    365,
			ExpiringSoonWindowDays: 30,
			ExpiryBatchSize:        100,
			OperationTimeout:       5 * time.Second,
			MaxRetries:             2,
			RetryBackoff:           time.Millisecond,
		},
	)
	return f
}

func (f *ledgerFixture) newCustomer(t *testing.T) *models.Customer {
	t.Helper()
	customer := &models.Customer{Name: "Test Customer", IsActive: true}
	require.NoError(t, f.customers.Create(context.Background(), customer))
	return customer
}

// seedLot plants an active lot directly, bypassing Earn, so tests can
// control the expiry date.
func (f *ledgerFixture) seedLot(t *testing.T, customerID primitive.ObjectID, amount int64, expiresAt time.Time) *models.PointLot {
	t.Helper()
	lot := &models.PointLot{
		CustomerID:     customerID,
		Amount:         amount,
		OriginalAmount: amount,
		Status:         models.LotStatusActive,
		EarnedAt:       time.Now(),
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, f.lots.Create(context.Background(), lot))
	require.NoError(t, f.customers.IncrementPoints(context.Background(), customerID, amount))
	return lot
}

func TestEarnCreatesLotAndIncrementsBalance(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	result, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         100,
		IdempotencyKey: "earn-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, int64(100), result.NewBalance)
	assert.Equal(t, models.TransactionStatusCompleted, result.Transaction.Status)
	assert.Equal(t, int64(0), result.Transaction.BalanceBefore)
	assert.Equal(t, int64(100), result.Transaction.BalanceAfter)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.TotalPoints)

	lots, err := f.lots.FindActiveByCustomer(context.Background(), customer.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, int64(100), lots[0].Amount)
	assert.Equal(t, result.Transaction.ID, lots[0].TransactionID)
	// Default lifetime applies when no expiration rules are configured.
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 365), lots[0].ExpiresAt, time.Minute)
}

func TestEarnUsesActiveExpirationRules(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	require.NoError(t, f.rules.Create(context.Background(), &models.PointsExpirationRules{
		DefaultLifetimeDays: 30,
	}))

	result, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         50,
		IdempotencyKey: "earn-rules",
	})
	require.NoError(t, err)

	lots, err := f.lots.FindActiveByCustomer(context.Background(), customer.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), lots[0].ExpiresAt, time.Minute)
	assert.Equal(t, int64(50), result.NewBalance)
}

func TestEarnIdempotentReplay(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	first, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         100,
		IdempotencyKey: "earn-dup",
	})
	require.NoError(t, err)

	second, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         100,
		IdempotencyKey: "earn-dup",
	})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, first.NewBalance, second.NewBalance)

	// The replay applied no second effect.
	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.TotalPoints)
}

func TestEarnValidation(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	_, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID: customer.ID, Amount: 0, IdempotencyKey: "k",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Earn(context.Background(), EarnInput{
		CustomerID: customer.ID, Amount: 10,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.Earn(context.Background(), EarnInput{
		CustomerID: primitive.NewObjectID(), Amount: 10, IdempotencyKey: "missing-customer",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemConsumesOldestExpiryFirst(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	now := time.Now()
	first := f.seedLot(t, customer.ID, 10, now.AddDate(0, 0, 10))
	second := f.seedLot(t, customer.ID, 20, now.AddDate(0, 0, 20))
	third := f.seedLot(t, customer.ID, 30, now.AddDate(0, 0, 30))

	result, err := f.service.Redeem(context.Background(), RedeemInput{
		CustomerID:     customer.ID,
		Amount:         15,
		IdempotencyKey: "redeem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(45), result.NewBalance)
	assert.Equal(t, int64(-15), result.Transaction.Points)

	// Oldest-expiry lot fully consumed, next one partially.
	l1, err := f.lots.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LotStatusRedeemed, l1.Status)
	assert.Equal(t, int64(0), l1.Amount)

	l2, err := f.lots.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LotStatusActive, l2.Status)
	assert.Equal(t, int64(15), l2.Amount)

	l3, err := f.lots.FindByID(context.Background(), third.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), l3.Amount)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), reloaded.TotalPoints)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	lot := f.seedLot(t, customer.ID, 30, time.Now().AddDate(0, 0, 30))

	_, err := f.service.Redeem(context.Background(), RedeemInput{
		CustomerID:     customer.ID,
		Amount:         50,
		IdempotencyKey: "redeem-over",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// No lot or balance mutation.
	reloadedLot, err := f.lots.FindByID(context.Background(), lot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), reloadedLot.Amount)
	assert.Equal(t, models.LotStatusActive, reloadedLot.Status)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), reloaded.TotalPoints)

	// The rejection burned the key: it is recorded and replayable.
	rejected, err := f.txs.FindByIdempotencyKey(context.Background(), "redeem-over")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusRejected, rejected.Status)

	replay, err := f.service.Redeem(context.Background(), RedeemInput{
		CustomerID:     customer.ID,
		Amount:         50,
		IdempotencyKey: "redeem-over",
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, models.TransactionStatusRejected, replay.Transaction.Status)
}

func TestRedeemSkipsExpiredLots(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	f.seedLot(t, customer.ID, 40, time.Now().AddDate(0, 0, -1)) // expired, not yet swept
	f.seedLot(t, customer.ID, 20, time.Now().AddDate(0, 0, 30))

	_, err := f.service.Redeem(context.Background(), RedeemInput{
		CustomerID:     customer.ID,
		Amount:         30,
		IdempotencyKey: "redeem-expired",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestConvertDebitsPointsAndComputesCurrency(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	f.seedLot(t, customer.ID, 100, time.Now().AddDate(0, 0, 30))

	result, err := f.service.Convert(context.Background(), ConvertInput{
		CustomerID:     customer.ID,
		Points:         40,
		Rate:           decimal.RequireFromString("0.5"),
		Currency:       "USD",
		IdempotencyKey: "convert-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), result.NewBalance)
	assert.True(t, decimal.RequireFromString("20").Equal(result.CurrencyAmount))
	assert.Equal(t, "USD", result.Currency)
	assert.Equal(t, models.TransactionTypeConvert, result.Transaction.Type)
	assert.Equal(t, "20", result.Transaction.Metadata["currencyAmount"])

	_, err = f.service.Convert(context.Background(), ConvertInput{
		CustomerID:     customer.ID,
		Points:         10,
		Rate:           decimal.Zero,
		Currency:       "USD",
		IdempotencyKey: "convert-bad-rate",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancelRedemptionRestoresBalanceWithFreshExpiry(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	original := f.seedLot(t, customer.ID, 100, time.Now().AddDate(0, 0, 10))

	redeemed, err := f.service.Redeem(context.Background(), RedeemInput{
		CustomerID:     customer.ID,
		Amount:         40,
		IdempotencyKey: "redeem-cancel",
	})
	require.NoError(t, err)
	require.Equal(t, int64(60), redeemed.NewBalance)

	result, err := f.service.CancelRedemption(context.Background(), "redeem-cancel", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.NewBalance)
	assert.Equal(t, models.TransactionTypeAdjust, result.Transaction.Type)
	assert.Equal(t, int64(40), result.Transaction.Points)
	assert.Equal(t, redeemed.Transaction.ID, result.Transaction.RefTransactionID)

	// The original redemption is now cancelled.
	orig, err := f.txs.FindByID(context.Background(), redeemed.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCancelled, orig.Status)

	// The restored points live in a new lot with a freshly computed expiry,
	// not the consumed lot's expiry.
	lots, err := f.lots.FindActiveByCustomer(context.Background(), customer.ID, time.Now())
	require.NoError(t, err)
	var restored *models.PointLot
	for _, l := range lots {
		if l.ID != original.ID {
			restored = l
		}
	}
	require.NotNil(t, restored)
	assert.Equal(t, int64(40), restored.Amount)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 365), restored.ExpiresAt, time.Minute)

	// Cancelling twice is rejected.
	_, err = f.service.CancelRedemption(context.Background(), "redeem-cancel", nil)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelRedemptionRejectsNonRedemptions(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	_, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         10,
		IdempotencyKey: "earn-not-redeem",
	})
	require.NoError(t, err)

	_, err = f.service.CancelRedemption(context.Background(), "earn-not-redeem", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.CancelRedemption(context.Background(), "no-such-key", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireDueLotsSweepIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	due := f.seedLot(t, customer.ID, 25, time.Now().AddDate(0, 0, -1))
	f.seedLot(t, customer.ID, 10, time.Now().AddDate(0, 0, 30))

	report, err := f.service.ExpireDueLots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, int64(25), report.PointsExpired)
	assert.Equal(t, 0, report.Failed)

	expired, err := f.lots.FindByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LotStatusExpired, expired.Status)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), reloaded.TotalPoints)

	tx, err := f.txs.FindByIdempotencyKey(context.Background(), "expire:"+due.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeExpire, tx.Type)
	assert.Equal(t, int64(-25), tx.Points)

	// Second run with no time passing: nothing left to expire.
	again, err := f.service.ExpireDueLots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)
	assert.Equal(t, 0, again.Expired)
}

func TestExpireDueLotsHonorsGracePeriod(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	require.NoError(t, f.rules.Create(context.Background(), &models.PointsExpirationRules{
		DefaultLifetimeDays: 365,
		GracePeriodDays:     7,
	}))
	// Nominally expired two days ago, but still inside the grace window.
	f.seedLot(t, customer.ID, 25, time.Now().AddDate(0, 0, -2))

	report, err := f.service.ExpireDueLots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), reloaded.TotalPoints)
}

func TestExpireDueLotsDoesNotCountAlreadyProcessedLots(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	due := f.seedLot(t, customer.ID, 25, time.Now().AddDate(0, 0, -1))

	report, err := f.service.ExpireDueLots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, int64(25), report.PointsExpired)

	// A sweep working from a stale listing reloads the lot, finds it no
	// longer active, and must not claim the points a prior pass expired.
	expired, err := f.service.expireLot(context.Background(), due)
	require.NoError(t, err)
	assert.Equal(t, int64(0), expired)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.TotalPoints)
}

func TestEarnReplayOfFailedPriorIsRetryableError(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	// A crash in best-effort mode can leave the transaction row failed with
	// no lot or balance effect behind it. Replaying that as a duplicate
	// success would make the lost earn look processed.
	require.NoError(t, f.txs.Create(context.Background(), &models.Transaction{
		CustomerID:     customer.ID,
		Type:           models.TransactionTypeEarn,
		Points:         100,
		Status:         models.TransactionStatusFailed,
		IdempotencyKey: "earn-crashed",
	}))

	result, err := f.service.Earn(context.Background(), EarnInput{
		CustomerID:     customer.ID,
		Amount:         100,
		IdempotencyKey: "earn-crashed",
	})
	require.ErrorIs(t, err, ErrTransientStore)
	assert.Nil(t, result)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.TotalPoints)
}

func TestGetBalanceReportsExpiringSoon(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)
	soon := f.seedLot(t, customer.ID, 20, time.Now().AddDate(0, 0, 5))
	f.seedLot(t, customer.ID, 80, time.Now().AddDate(0, 0, 90))

	balance, err := f.service.GetBalance(context.Background(), customer.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Total)
	assert.Equal(t, int64(20), balance.ExpiringSoon)
	assert.Equal(t, 15, balance.WindowDays)
	require.NotNil(t, balance.NextExpiry)
	assert.WithinDuration(t, soon.ExpiresAt, *balance.NextExpiry, time.Second)

	_, err = f.service.GetBalance(context.Background(), primitive.NewObjectID(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceMatchesActiveLotSum(t *testing.T) {
	f := newLedgerFixture(t)
	customer := f.newCustomer(t)

	ops := []struct {
		earn   int64
		redeem int64
	}{
		{earn: 100}, {earn: 50}, {redeem: 70}, {earn: 25}, {redeem: 5},
	}
	for i, op := range ops {
		var err error
		if op.earn > 0 {
			_, err = f.service.Earn(context.Background(), EarnInput{
				CustomerID: customer.ID, Amount: op.earn,
				IdempotencyKey: "inv-earn-" + primitive.NewObjectID().Hex(),
			})
		} else {
			_, err = f.service.Redeem(context.Background(), RedeemInput{
				CustomerID: customer.ID, Amount: op.redeem,
				IdempotencyKey: "inv-redeem-" + primitive.NewObjectID().Hex(),
			})
		}
		require.NoError(t, err, "operation %d", i)
	}

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	sum, err := f.lots.SumActiveByCustomer(context.Background(), customer.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.TotalPoints)
	assert.Equal(t, reloaded.TotalPoints, sum)
}
