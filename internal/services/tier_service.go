package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure TierServiceImpl implements TierService
var _ TierService = (*TierServiceImpl)(nil)
var _ UpgradeEvaluator = (*TierServiceImpl)(nil)

// TierServiceImpl evaluates upgrade eligibility and runs the monthly
// downgrade. Tiers are always compared by hierarchy level, never by name;
// promotion and demotion move exactly one rung of the level-sorted catalog.
type TierServiceImpl struct {
	uow          repositories.UnitOfWork
	customerRepo repositories.CustomerRepository
	txRepo       repositories.TransactionRepository
	tierRepo     repositories.TierRepository
	criteriaRepo repositories.TierCriteriaRepository
	auditor      audit.Publisher
}

// NewTierService creates a new TierServiceImpl
func NewTierService(
	uow repositories.UnitOfWork,
	customerRepo repositories.CustomerRepository,
	txRepo repositories.TransactionRepository,
	tierRepo repositories.TierRepository,
	criteriaRepo repositories.TierCriteriaRepository,
	auditor audit.Publisher,
) *TierServiceImpl {
	return &TierServiceImpl{
		uow:          uow,
		customerRepo: customerRepo,
		txRepo:       txRepo,
		tierRepo:     tierRepo,
		criteriaRepo: criteriaRepo,
		auditor:      auditor,
	}
}

// CheckUpgrade evaluates the customer against the tier immediately above
// their current level (levels are never skipped). The criteria fetch, the
// period aggregation and — when apply is set — the reassignment all run in
// one unit of work, so the evaluation never sees a mid-update balance.
func (s *TierServiceImpl) CheckUpgrade(ctx context.Context, customerID primitive.ObjectID, apply bool) (*models.EligibilityReport, error) {
	var report *models.EligibilityReport
	err := s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		customer, err := s.customerRepo.FindByID(txCtx, customerID)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: customer %s", ErrNotFound, customerID.Hex())
			}
			return fmt.Errorf("failed to load customer: %w", err)
		}

		tiers, err := s.tierRepo.FindAll(txCtx)
		if err != nil {
			return fmt.Errorf("failed to load tier catalog: %w", err)
		}
		if len(tiers) == 0 {
			return fmt.Errorf("%w: tier catalog is empty", ErrConfiguration)
		}

		now := time.Now()
		report = &models.EligibilityReport{
			CustomerID:       customerID,
			CurrentTierLevel: -1,
			EvaluatedAt:      now,
		}

		// Locate the rung above the customer's current tier. A customer
		// with no tier targets the lowest rung.
		target := tiers[0]
		if !customer.TierID.IsZero() {
			idx := -1
			for i, t := range tiers {
				if t.ID == customer.TierID {
					idx = i
					break
				}
			}
			if idx == -1 {
				return fmt.Errorf("%w: customer tier %s not in active catalog", ErrNotFound, customer.TierID.Hex())
			}
			report.CurrentTierLevel = tiers[idx].HierarchyLevel
			if idx == len(tiers)-1 {
				report.Reason = "already at highest tier"
				return nil
			}
			target = tiers[idx+1]
		}
		report.TargetTierID = target.ID
		report.TargetTierLevel = target.HierarchyLevel

		criteria, err := s.lookupCriteria(txCtx, target.ID, customer.AppID)
		if err != nil {
			return err
		}

		if criteria == nil {
			// No criteria configured anywhere: the points threshold alone
			// decides.
			report.Eligible = customer.TotalPoints >= target.PointsThreshold
			if report.Eligible {
				report.Reason = "points threshold met"
			} else {
				report.Reason = fmt.Sprintf("points threshold not met: have %d, need %d",
					customer.TotalPoints, target.PointsThreshold)
			}
		} else {
			if err := s.evaluateCriteria(txCtx, customer, criteria, now, report); err != nil {
				return err
			}
		}

		if report.Eligible && apply {
			if err := s.applyTierChange(txCtx, customer, target, "tier_upgrade", report); err != nil {
				return err
			}
			report.Applied = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// lookupCriteria fetches the app-scoped criteria, falling back to the
// general record; nil with no error means no criteria exist at all.
func (s *TierServiceImpl) lookupCriteria(ctx context.Context, tierID primitive.ObjectID, appID string) (*models.TierEligibilityCriteria, error) {
	if appID != "" {
		criteria, err := s.criteriaRepo.FindByTierAndApp(ctx, tierID, appID)
		if err == nil {
			return criteria, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to load scoped criteria: %w", err)
		}
	}
	criteria, err := s.criteriaRepo.FindByTierAndApp(ctx, tierID, "")
	if err == nil {
		return criteria, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("failed to load general criteria: %w", err)
	}
	return nil, nil
}

// evaluateCriteria partitions the trailing periods, computes each period's
// net earning and decides eligibility, scanning oldest to newest.
func (s *TierServiceImpl) evaluateCriteria(ctx context.Context, customer *models.Customer, criteria *models.TierEligibilityCriteria, now time.Time, report *models.EligibilityReport) error {
	required := criteria.ConsecutivePeriodsRequired
	if required <= 0 {
		return fmt.Errorf("%w: criteria for tier %s requires zero periods", ErrConfiguration, criteria.TierID.Hex())
	}
	// Scan twice the required count: a qualifying streak broken by an idle
	// period must stay observable for the total-count mode, which a window
	// of exactly `required` periods cannot show.
	periods := trailingPeriods(now, required*2, criteria.EvaluationPeriodDays, criteria.UseCalendarMonths)

	txs, err := s.txRepo.FindCompletedInRange(ctx, customer.ID, periods[0].Start, periods[len(periods)-1].End)
	if err != nil {
		return fmt.Errorf("failed to load transactions for evaluation: %w", err)
	}

	results := make([]models.PeriodResult, 0, len(periods))
	for _, p := range periods {
		net := netEarned(txs, p)
		results = append(results, models.PeriodResult{
			Start:     p.Start,
			End:       p.End,
			NetEarned: net,
			Qualified: net >= criteria.NetEarningRequired,
		})
	}
	report.Periods = results

	if criteria.RequireConsecutive {
		report.Eligible = longestQualifyingRun(results) >= required
	} else {
		report.Eligible = qualifyingCount(results) >= required
	}
	if report.Eligible {
		report.Reason = "earning criteria met"
	} else {
		report.Reason = fmt.Sprintf("earning criteria not met: %d of %d periods qualified (consecutive=%t)",
			qualifyingCount(results), required, criteria.RequireConsecutive)
	}
	return nil
}

// applyTierChange reassigns the tier and records the zero-point adjust
// transaction that keeps the audit trail continuous.
func (s *TierServiceImpl) applyTierChange(ctx context.Context, customer *models.Customer, target *models.Tier, action string, report *models.EligibilityReport) error {
	if err := s.customerRepo.UpdateTier(ctx, customer.ID, target.ID); err != nil {
		return fmt.Errorf("failed to reassign tier: %w", err)
	}

	metadata := map[string]interface{}{
		"action":        action,
		"fromTierLevel": report.CurrentTierLevel,
		"toTierLevel":   target.HierarchyLevel,
		"toTierId":      target.ID.Hex(),
		"reason":        report.Reason,
	}
	if len(report.Periods) > 0 {
		metadata["qualifiedPeriods"] = qualifyingCount(report.Periods)
		metadata["evaluatedPeriods"] = len(report.Periods)
	}

	tx := &models.Transaction{
		CustomerID:     customer.ID,
		Type:           models.TransactionTypeAdjust,
		Points:         0,
		Status:         models.TransactionStatusCompleted,
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", action, customer.ID.Hex(), primitive.NewObjectID().Hex()),
		BalanceBefore:  customer.TotalPoints,
		BalanceAfter:   customer.TotalPoints,
		Metadata:       metadata,
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		return fmt.Errorf("failed to record tier change: %w", err)
	}

	if s.auditor != nil {
		s.auditor.Publish(audit.Event{
			Action:        action,
			CustomerID:    customer.ID,
			TransactionID: tx.ID,
			BalanceBefore: customer.TotalPoints,
			BalanceAfter:  customer.TotalPoints,
			Details:       metadata,
		})
	}
	return nil
}

// EvaluateDowngrades runs the monthly demotion pass. A customer in a tier
// with a downgrade rule is demoted one rung when both tests fail: total
// points below the tier minimum AND the trailing monthly earning average
// below the tier's requirement. Customers are evaluated independently; one
// failure is logged and the batch continues.
func (s *TierServiceImpl) EvaluateDowngrades(ctx context.Context, now time.Time) (*models.DowngradeReport, error) {
	started := time.Now()
	report := &models.DowngradeReport{StartedAt: started}

	tiers, err := s.tierRepo.FindAll(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load tier catalog: %w", err)
	}

	for i, tier := range tiers {
		if tier.DowngradeGraceMonths <= 0 || i == 0 {
			// No rule configured, or already the base tier.
			continue
		}
		lower := tiers[i-1]

		customers, err := s.customerRepo.FindByTier(ctx, tier.ID)
		if err != nil {
			slog.Error("Failed to list customers for downgrade evaluation",
				"error", err, "tierLevel", tier.HierarchyLevel)
			report.Failed++
			continue
		}

		for _, customer := range customers {
			report.Evaluated++
			demoted, err := s.evaluateDowngrade(ctx, customer, tier, lower, now)
			if err != nil {
				report.Failed++
				slog.Error("Downgrade evaluation failed for customer; continuing",
					"error", err, "customerId", customer.ID.Hex(), "tierLevel", tier.HierarchyLevel)
				continue
			}
			if demoted {
				report.Downgraded++
			} else {
				report.Retained++
			}
		}
	}

	report.Duration = time.Since(started).String()
	return report, nil
}

// evaluateDowngrade decides one customer in its own unit of work. The
// monthly average divides total earning by the full grace-window month
// count — a window with no earning at all averages to zero rather than
// being silently treated as a single month.
func (s *TierServiceImpl) evaluateDowngrade(ctx context.Context, customer *models.Customer, tier, lower *models.Tier, now time.Time) (bool, error) {
	demoted := false
	err := s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.customerRepo.FindByID(txCtx, customer.ID)
		if err != nil {
			return fmt.Errorf("failed to reload customer: %w", err)
		}
		if current.TierID != tier.ID {
			return nil // moved since the listing; skip
		}

		months := trailingMonths(now, tier.DowngradeGraceMonths)
		txs, err := s.txRepo.FindCompletedInRange(txCtx, current.ID, months[0].Start, months[len(months)-1].End)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}

		var totalEarned int64
		for _, m := range months {
			totalEarned += earnedTotal(txs, m)
		}
		monthlyAverage := totalEarned / int64(tier.DowngradeGraceMonths)

		belowMinimum := current.TotalPoints < tier.MinimumPoints
		belowAverage := monthlyAverage < tier.RequiredMonthlyAverage
		if !belowMinimum || !belowAverage {
			return nil
		}

		report := &models.EligibilityReport{
			CustomerID:       current.ID,
			CurrentTierLevel: tier.HierarchyLevel,
			Reason: fmt.Sprintf("downgrade: total %d < minimum %d and monthly average %d < required %d over %d months",
				current.TotalPoints, tier.MinimumPoints, monthlyAverage, tier.RequiredMonthlyAverage, tier.DowngradeGraceMonths),
		}
		if err := s.applyTierChange(txCtx, current, lower, "tier_downgrade", report); err != nil {
			return err
		}
		demoted = true
		return nil
	})
	return demoted, err
}
