package services

import (
	"context"
	"testing"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type tierFixture struct {
	store     *memory.Store
	customers *memory.CustomerRepository
	txs       *memory.TransactionRepository
	tiers     *memory.TierRepository
	criteria  *memory.TierCriteriaRepository
	service   *TierServiceImpl

	bronze *models.Tier
	silver *models.Tier
	gold   *models.Tier
}

func newTierFixture(t *testing.T) *tierFixture {
	t.Helper()
	store := memory.NewStore()
	f := &tierFixture{
		store:     store,
		customers: memory.NewCustomerRepository(store),
		txs:       memory.NewTransactionRepository(store),
		tiers:     memory.NewTierRepository(store),
		criteria:  memory.NewTierCriteriaRepository(store),
	}
	f.service = NewTierService(
		memory.NewUnitOfWork(store),
		f.customers, f.txs, f.tiers, f.criteria,
		audit.Discard{},
	)

	f.bronze = &models.Tier{Name: "Bronze", HierarchyLevel: 1, PointsThreshold: 0, IsActive: true}
	f.silver = &models.Tier{Name: "Silver", HierarchyLevel: 2, PointsThreshold: 1000, IsActive: true}
	f.gold = &models.Tier{
		Name: "Gold", HierarchyLevel: 3, PointsThreshold: 5000, IsActive: true,
		MinimumPoints:          450,
		RequiredMonthlyAverage: 150,
		DowngradeGraceMonths:   3,
	}
	require.NoError(t, f.tiers.Create(context.Background(), f.bronze))
	require.NoError(t, f.tiers.Create(context.Background(), f.silver))
	require.NoError(t, f.tiers.Create(context.Background(), f.gold))
	return f
}

func (f *tierFixture) newCustomer(t *testing.T, tierID primitive.ObjectID, points int64) *models.Customer {
	t.Helper()
	customer := &models.Customer{Name: "Member", TierID: tierID, IsActive: true}
	require.NoError(t, f.customers.Create(context.Background(), customer))
	if points != 0 {
		require.NoError(t, f.customers.IncrementPoints(context.Background(), customer.ID, points))
		customer.TotalPoints = points
	}
	return customer
}

// seedEarn plants a completed earn transaction backdated to `at`.
func (f *tierFixture) seedEarn(t *testing.T, customerID primitive.ObjectID, points int64, at time.Time) {
	t.Helper()
	tx := &models.Transaction{
		CustomerID:     customerID,
		Type:           models.TransactionTypeEarn,
		Points:         points,
		Status:         models.TransactionStatusCompleted,
		IdempotencyKey: "seed:" + primitive.NewObjectID().Hex(),
		CreatedAt:      at,
	}
	require.NoError(t, f.txs.Create(context.Background(), tx))
}

// completedMonth returns a timestamp inside the n-th most recent completed
// calendar month (n=1 is last month).
func completedMonth(n int) time.Time {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return monthStart.AddDate(0, -n, 0).Add(48 * time.Hour)
}

func TestCheckUpgradeThresholdOnly(t *testing.T) {
	f := newTierFixture(t)
	customer := f.newCustomer(t, f.bronze.ID, 1200)

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
	require.NoError(t, err)
	assert.True(t, report.Eligible)
	assert.False(t, report.Applied)
	assert.Equal(t, f.silver.ID, report.TargetTierID)
	assert.Equal(t, 2, report.TargetTierLevel)

	// Read-only: the customer was not promoted.
	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bronze.ID, reloaded.TierID)

	report, err = f.service.CheckUpgrade(context.Background(), customer.ID, true)
	require.NoError(t, err)
	assert.True(t, report.Applied)

	reloaded, err = f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.silver.ID, reloaded.TierID)

	// The promotion left a zero-point adjust transaction behind.
	history, err := f.txs.FindByCustomer(context.Background(), customer.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionTypeAdjust, history[0].Type)
	assert.Equal(t, int64(0), history[0].Points)
	assert.Equal(t, "tier_upgrade", history[0].Metadata["action"])
}

func TestCheckUpgradeThresholdNotMet(t *testing.T) {
	f := newTierFixture(t)
	customer := f.newCustomer(t, f.bronze.ID, 500)

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, true)
	require.NoError(t, err)
	assert.False(t, report.Eligible)
	assert.False(t, report.Applied)

	reloaded, err := f.customers.FindByID(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bronze.ID, reloaded.TierID)
}

func TestCheckUpgradeUntieredCustomerTargetsLowestRung(t *testing.T) {
	f := newTierFixture(t)
	customer := f.newCustomer(t, primitive.NilObjectID, 0)

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, true)
	require.NoError(t, err)
	assert.Equal(t, -1, report.CurrentTierLevel)
	assert.Equal(t, f.bronze.ID, report.TargetTierID)
	assert.True(t, report.Eligible) // bronze threshold is zero
	assert.True(t, report.Applied)
}

func TestCheckUpgradeAtHighestTier(t *testing.T) {
	f := newTierFixture(t)
	customer := f.newCustomer(t, f.gold.ID, 10000)

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, true)
	require.NoError(t, err)
	assert.False(t, report.Eligible)
	assert.Equal(t, "already at highest tier", report.Reason)
}

func TestCheckUpgradeConsecutivePeriods(t *testing.T) {
	f := newTierFixture(t)
	require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
		TierID:                     f.silver.ID,
		NetEarningRequired:         100,
		ConsecutivePeriodsRequired: 2,
		RequireConsecutive:         true,
		UseCalendarMonths:          true,
		IsActive:                   true,
	}))

	customer := f.newCustomer(t, f.bronze.ID, 0)
	f.seedEarn(t, customer.ID, 150, completedMonth(1))
	f.seedEarn(t, customer.ID, 120, completedMonth(2))

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
	require.NoError(t, err)
	assert.True(t, report.Eligible, "two consecutive qualifying months meet the bar")
	require.Len(t, report.Periods, 4)
	assert.True(t, report.Periods[len(report.Periods)-1].Qualified)
}

func TestCheckUpgradeGapBreaksConsecutiveButNotTotal(t *testing.T) {
	seed := func(t *testing.T, f *tierFixture) *models.Customer {
		customer := f.newCustomer(t, f.bronze.ID, 0)
		// Two qualifying months separated by an idle one.
		f.seedEarn(t, customer.ID, 150, completedMonth(1))
		f.seedEarn(t, customer.ID, 30, completedMonth(2))
		f.seedEarn(t, customer.ID, 120, completedMonth(3))
		return customer
	}

	t.Run("consecutive required", func(t *testing.T) {
		f := newTierFixture(t)
		require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
			TierID:                     f.silver.ID,
			NetEarningRequired:         100,
			ConsecutivePeriodsRequired: 2,
			RequireConsecutive:         true,
			UseCalendarMonths:          true,
			IsActive:                   true,
		}))
		customer := seed(t, f)

		report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
		require.NoError(t, err)
		assert.False(t, report.Eligible)
	})

	t.Run("total count suffices", func(t *testing.T) {
		f := newTierFixture(t)
		require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
			TierID:                     f.silver.ID,
			NetEarningRequired:         100,
			ConsecutivePeriodsRequired: 2,
			RequireConsecutive:         false,
			UseCalendarMonths:          true,
			IsActive:                   true,
		}))
		customer := seed(t, f)

		report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
		require.NoError(t, err)
		assert.True(t, report.Eligible)
	})
}

func TestCheckUpgradeNetEarningSubtractsRedemptions(t *testing.T) {
	f := newTierFixture(t)
	require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
		TierID:                     f.silver.ID,
		NetEarningRequired:         100,
		ConsecutivePeriodsRequired: 1,
		RequireConsecutive:         true,
		UseCalendarMonths:          true,
		IsActive:                   true,
	}))

	customer := f.newCustomer(t, f.bronze.ID, 0)
	f.seedEarn(t, customer.ID, 150, completedMonth(1))
	// A redemption inside the period drags net earning below the bar.
	redeem := &models.Transaction{
		CustomerID:     customer.ID,
		Type:           models.TransactionTypeRedeem,
		Points:         -80,
		Status:         models.TransactionStatusCompleted,
		IdempotencyKey: "seed:" + primitive.NewObjectID().Hex(),
		CreatedAt:      completedMonth(1).Add(time.Hour),
	}
	require.NoError(t, f.txs.Create(context.Background(), redeem))

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
	require.NoError(t, err)
	assert.False(t, report.Eligible)
}

func TestCheckUpgradeAppScopedCriteriaWinOverGeneral(t *testing.T) {
	f := newTierFixture(t)
	// General criteria are strict, the app-scoped ones lenient.
	require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
		TierID: f.silver.ID, NetEarningRequired: 1000,
		ConsecutivePeriodsRequired: 1, RequireConsecutive: true, UseCalendarMonths: true, IsActive: true,
	}))
	require.NoError(t, f.criteria.Upsert(context.Background(), &models.TierEligibilityCriteria{
		TierID: f.silver.ID, AppID: "mobile", NetEarningRequired: 50,
		ConsecutivePeriodsRequired: 1, RequireConsecutive: true, UseCalendarMonths: true, IsActive: true,
	}))

	customer := &models.Customer{Name: "Scoped", AppID: "mobile", TierID: f.bronze.ID, IsActive: true}
	require.NoError(t, f.customers.Create(context.Background(), customer))
	f.seedEarn(t, customer.ID, 80, completedMonth(1))

	report, err := f.service.CheckUpgrade(context.Background(), customer.ID, false)
	require.NoError(t, err)
	assert.True(t, report.Eligible, "app-scoped bar of 50 applies, not the general 1000")
}

func TestEvaluateDowngrades(t *testing.T) {
	f := newTierFixture(t)

	// Below minimum and below average: demoted one rung.
	lapsing := f.newCustomer(t, f.gold.ID, 400)
	for i := 1; i <= 3; i++ {
		f.seedEarn(t, lapsing.ID, 120, completedMonth(i)) // avg 120 < 150
	}

	// Below minimum but average holds: retained.
	earning := f.newCustomer(t, f.gold.ID, 400)
	for i := 1; i <= 3; i++ {
		f.seedEarn(t, earning.ID, 160, completedMonth(i)) // avg 160 >= 150
	}

	// Above minimum: retained regardless of average.
	wealthy := f.newCustomer(t, f.gold.ID, 800)

	report, err := f.service.EvaluateDowngrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Evaluated)
	assert.Equal(t, 1, report.Downgraded)
	assert.Equal(t, 2, report.Retained)
	assert.Equal(t, 0, report.Failed)

	demoted, err := f.customers.FindByID(context.Background(), lapsing.ID)
	require.NoError(t, err)
	assert.Equal(t, f.silver.ID, demoted.TierID)

	retained, err := f.customers.FindByID(context.Background(), earning.ID)
	require.NoError(t, err)
	assert.Equal(t, f.gold.ID, retained.TierID)

	untouched, err := f.customers.FindByID(context.Background(), wealthy.ID)
	require.NoError(t, err)
	assert.Equal(t, f.gold.ID, untouched.TierID)

	// The demotion recorded its zero-point audit transaction.
	history, err := f.txs.FindByCustomer(context.Background(), demoted.ID, 1, 10)
	require.NoError(t, err)
	found := false
	for _, tx := range history {
		if tx.Metadata["action"] == "tier_downgrade" {
			found = true
			assert.Equal(t, int64(0), tx.Points)
		}
	}
	assert.True(t, found)
}

func TestEvaluateDowngradesIdleCustomerAveragesZero(t *testing.T) {
	f := newTierFixture(t)
	// No earning at all in the window: the full-divisor average is zero,
	// not "total over one month".
	idle := f.newCustomer(t, f.gold.ID, 400)

	report, err := f.service.EvaluateDowngrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downgraded)

	demoted, err := f.customers.FindByID(context.Background(), idle.ID)
	require.NoError(t, err)
	assert.Equal(t, f.silver.ID, demoted.TierID)
}

func TestEvaluateDowngradesSkipsTiersWithoutRules(t *testing.T) {
	f := newTierFixture(t)
	// Silver has no downgrade rule; its customers are never evaluated.
	f.newCustomer(t, f.silver.ID, 0)

	report, err := f.service.EvaluateDowngrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Equal(t, 0, report.Downgraded)
}
