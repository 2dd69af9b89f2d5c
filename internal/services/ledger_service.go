package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure LedgerServiceImpl implements LedgerService
var _ LedgerService = (*LedgerServiceImpl)(nil)

// UpgradeEvaluator is the tier-evaluation hook Earn fires best-effort.
// Declared here (not as TierService) to keep the dependency one-way.
type UpgradeEvaluator interface {
	CheckUpgrade(ctx context.Context, customerID primitive.ObjectID, apply bool) (*models.EligibilityReport, error)
}

// LedgerServiceImpl orchestrates the point lot store, the transaction log
// and the denormalized customer balance under one unit of work per
// operation. All balance math happens inside that unit; TotalPoints is
// never read outside the atomic unit that writes it.
type LedgerServiceImpl struct {
	uow          repositories.UnitOfWork
	customerRepo repositories.CustomerRepository
	lotRepo      repositories.PointLotRepository
	txRepo       repositories.TransactionRepository
	tierRepo     repositories.TierRepository
	rulesRepo    repositories.ExpirationRulesRepository
	auditor      audit.Publisher
	cfg          config.LedgerConfig

	upgrades UpgradeEvaluator // optional, set after construction
}

// NewLedgerService creates a new LedgerServiceImpl
func NewLedgerService(
	uow repositories.UnitOfWork,
	customerRepo repositories.CustomerRepository,
	lotRepo repositories.PointLotRepository,
	txRepo repositories.TransactionRepository,
	tierRepo repositories.TierRepository,
	rulesRepo repositories.ExpirationRulesRepository,
	auditor audit.Publisher,
	cfg config.LedgerConfig,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		uow:          uow,
		customerRepo: customerRepo,
		lotRepo:      lotRepo,
		txRepo:       txRepo,
		tierRepo:     tierRepo,
		rulesRepo:    rulesRepo,
		auditor:      auditor,
		cfg:          cfg,
	}
}

// SetUpgradeEvaluator wires the tier evaluator invoked after a successful
// Earn. Its failures are logged and never fail the Earn.
func (s *LedgerServiceImpl) SetUpgradeEvaluator(e UpgradeEvaluator) {
	s.upgrades = e
}

// errDuplicateRace signals that the idempotency key lost a concurrent
// insert race inside the unit of work; the caller re-reads the winner.
var errDuplicateRace = errors.New("idempotency key raced")

// Earn grants points: one pending transaction, one new lot with a computed
// expiry, one balance increment, then the transaction completes — all in a
// single unit of work.
func (s *LedgerServiceImpl) Earn(ctx context.Context, in EarnInput) (*LedgerResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: earn amount must be positive, got %d", ErrValidation, in.Amount)
	}
	if in.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if result, err := s.replayIfProcessed(ctx, in.IdempotencyKey); result != nil || err != nil {
		return result, err
	}

	var (
		result      *LedgerResult
		pendingTxID primitive.ObjectID
	)
	op := func(ctx context.Context) error {
		return s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
			customer, err := s.customerRepo.FindByID(txCtx, in.CustomerID)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: customer %s", ErrNotFound, in.CustomerID.Hex())
				}
				return fmt.Errorf("failed to load customer: %w", err)
			}

			tx := &models.Transaction{
				CustomerID:     in.CustomerID,
				Type:           models.TransactionTypeEarn,
				Points:         in.Amount,
				Status:         models.TransactionStatusPending,
				IdempotencyKey: in.IdempotencyKey,
				BalanceBefore:  customer.TotalPoints,
				Metadata:       in.Metadata,
			}
			if err := s.txRepo.Create(txCtx, tx); err != nil {
				if isDuplicateKey(err) {
					return errDuplicateRace
				}
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			pendingTxID = tx.ID

			expiresAt, err := s.computeLotExpiry(txCtx, customer)
			if err != nil {
				return err
			}
			lot := &models.PointLot{
				CustomerID:     in.CustomerID,
				Amount:         in.Amount,
				OriginalAmount: in.Amount,
				Status:         models.LotStatusActive,
				EarnedAt:       time.Now(),
				ExpiresAt:      expiresAt,
				TransactionID:  tx.ID,
			}
			if err := s.lotRepo.Create(txCtx, lot); err != nil {
				return fmt.Errorf("failed to create point lot: %w", err)
			}

			if err := s.customerRepo.IncrementPoints(txCtx, in.CustomerID, in.Amount); err != nil {
				return fmt.Errorf("failed to increment balance: %w", err)
			}

			tx.Status = models.TransactionStatusCompleted
			tx.BalanceAfter = customer.TotalPoints + in.Amount
			if err := s.txRepo.Update(txCtx, tx); err != nil {
				return fmt.Errorf("failed to complete transaction: %w", err)
			}

			result = &LedgerResult{Transaction: tx, NewBalance: tx.BalanceAfter}
			return nil
		})
	}

	if err := s.withRetry(ctx, op); err != nil {
		if errors.Is(err, errDuplicateRace) {
			return s.replayProcessed(ctx, in.IdempotencyKey)
		}
		s.markFailedBestEffort(pendingTxID)
		return nil, err
	}

	s.publish("earn", result.Transaction)
	s.triggerUpgradeCheck(in.CustomerID)
	return result, nil
}

// Redeem consumes points oldest-expiry-first. The FIFO order preferentially
// spends points closest to expiring, minimizing future forfeiture; ties are
// broken by lot creation order. Partial consumption decrements the lot in
// place, full consumption flips it to redeemed.
func (s *LedgerServiceImpl) Redeem(ctx context.Context, in RedeemInput) (*LedgerResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: redeem amount must be positive, got %d", ErrValidation, in.Amount)
	}
	if in.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if result, err := s.replayIfProcessed(ctx, in.IdempotencyKey); result != nil || err != nil {
		return result, err
	}

	result, err := s.debitFIFO(ctx, in.CustomerID, in.Amount, models.TransactionTypeRedeem, in.IdempotencyKey, in.Metadata)
	if err != nil {
		return nil, err
	}
	s.publish("redeem", result.Transaction)
	return result, nil
}

// Convert debits points exactly like Redeem and records a convert
// transaction; the currency leg settles out of scope.
func (s *LedgerServiceImpl) Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error) {
	if in.Points <= 0 {
		return nil, fmt.Errorf("%w: convert amount must be positive, got %d", ErrValidation, in.Points)
	}
	if in.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if in.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if !in.Rate.IsPositive() {
		return nil, fmt.Errorf("%w: conversion rate must be positive", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	currencyAmount := decimal.NewFromInt(in.Points).Mul(in.Rate)

	if result, err := s.replayIfProcessed(ctx, in.IdempotencyKey); result != nil || err != nil {
		if result != nil {
			return &ConvertResult{LedgerResult: *result, CurrencyAmount: currencyAmount, Currency: in.Currency}, err
		}
		return nil, err
	}

	metadata := map[string]interface{}{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["currency"] = in.Currency
	metadata["rate"] = in.Rate.String()
	metadata["currencyAmount"] = currencyAmount.String()

	result, err := s.debitFIFO(ctx, in.CustomerID, in.Points, models.TransactionTypeConvert, in.IdempotencyKey, metadata)
	if err != nil {
		return nil, err
	}
	s.publish("convert", result.Transaction)
	return &ConvertResult{LedgerResult: *result, CurrencyAmount: currencyAmount, Currency: in.Currency}, nil
}

// debitFIFO is the shared consumption path for Redeem and Convert.
func (s *LedgerServiceImpl) debitFIFO(ctx context.Context, customerID primitive.ObjectID, amount int64, txType models.TransactionType, key string, metadata map[string]interface{}) (*LedgerResult, error) {
	var (
		result      *LedgerResult
		pendingTxID primitive.ObjectID
	)
	op := func(ctx context.Context) error {
		return s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
			customer, err := s.customerRepo.FindByID(txCtx, customerID)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: customer %s", ErrNotFound, customerID.Hex())
				}
				return fmt.Errorf("failed to load customer: %w", err)
			}

			now := time.Now()
			lots, err := s.lotRepo.FindActiveByCustomer(txCtx, customerID, now)
			if err != nil {
				return fmt.Errorf("failed to load active lots: %w", err)
			}
			var available int64
			for _, lot := range lots {
				available += lot.Amount
			}
			if available < amount {
				return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, available, amount)
			}

			tx := &models.Transaction{
				CustomerID:     customerID,
				Type:           txType,
				Points:         -amount,
				Status:         models.TransactionStatusPending,
				IdempotencyKey: key,
				BalanceBefore:  customer.TotalPoints,
				Metadata:       metadata,
			}
			if err := s.txRepo.Create(txCtx, tx); err != nil {
				if isDuplicateKey(err) {
					return errDuplicateRace
				}
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			pendingTxID = tx.ID

			remaining := amount
			for _, lot := range lots {
				if remaining == 0 {
					break
				}
				if lot.Amount <= remaining {
					remaining -= lot.Amount
					lot.Amount = 0
					lot.Status = models.LotStatusRedeemed
				} else {
					lot.Amount -= remaining
					remaining = 0
				}
				if err := s.lotRepo.Update(txCtx, lot); err != nil {
					return fmt.Errorf("failed to consume lot %s: %w", lot.ID.Hex(), err)
				}
			}

			if err := s.customerRepo.IncrementPoints(txCtx, customerID, -amount); err != nil {
				return fmt.Errorf("failed to decrement balance: %w", err)
			}

			tx.Status = models.TransactionStatusCompleted
			tx.BalanceAfter = customer.TotalPoints - amount
			if err := s.txRepo.Update(txCtx, tx); err != nil {
				return fmt.Errorf("failed to complete transaction: %w", err)
			}

			result = &LedgerResult{Transaction: tx, NewBalance: tx.BalanceAfter}
			return nil
		})
	}

	if err := s.withRetry(ctx, op); err != nil {
		if errors.Is(err, errDuplicateRace) {
			return s.replayProcessed(ctx, key)
		}
		if errors.Is(err, ErrInsufficientBalance) {
			// Business rejection: nothing was mutated. Record the rejected
			// transaction outside the unit of work so the key is burned and
			// the rejection is auditable.
			s.recordRejection(ctx, customerID, amount, txType, key, metadata)
			return nil, err
		}
		s.markFailedBestEffort(pendingTxID)
		return nil, err
	}
	return result, nil
}

// CancelRedemption compensates a completed redemption: the original
// transaction flips to cancelled and an adjust transaction restores the
// exact amount as a new active lot with a freshly computed expiry (not the
// original lot's expiry — cancellation does not resurrect consumed lots).
func (s *LedgerServiceImpl) CancelRedemption(ctx context.Context, originalIdempotencyKey string, metadata map[string]interface{}) (*LedgerResult, error) {
	if originalIdempotencyKey == "" {
		return nil, fmt.Errorf("%w: original idempotency key is required", ErrValidation)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	original, err := s.txRepo.FindByIdempotencyKey(ctx, originalIdempotencyKey)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: transaction with key %q", ErrNotFound, originalIdempotencyKey)
		}
		return nil, fmt.Errorf("failed to load original transaction: %w", err)
	}
	if original.Type != models.TransactionTypeRedeem {
		return nil, fmt.Errorf("%w: transaction %s is %s, not a redemption", ErrValidation, original.ID.Hex(), original.Type)
	}
	if original.Status == models.TransactionStatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if original.Status != models.TransactionStatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s is %s, only completed redemptions can be cancelled", ErrValidation, original.ID.Hex(), original.Status)
	}

	// Without transactions the compensating adjust and the status flip on the
	// original are separate writes; a crash between them leaves the original
	// still reading completed. The ref lookup catches that half-applied state.
	if prior, err := s.txRepo.FindByRefTransaction(ctx, original.ID); err == nil {
		if prior.Status != models.TransactionStatusFailed {
			return nil, ErrAlreadyCancelled
		}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("failed to check for existing compensation: %w", err)
	}

	restore := -original.Points // redeem points are negative

	var (
		result      *LedgerResult
		pendingTxID primitive.ObjectID
	)
	op := func(ctx context.Context) error {
		return s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
			customer, err := s.customerRepo.FindByID(txCtx, original.CustomerID)
			if err != nil {
				return fmt.Errorf("failed to load customer: %w", err)
			}

			adjust := &models.Transaction{
				CustomerID:       original.CustomerID,
				Type:             models.TransactionTypeAdjust,
				Points:           restore,
				Status:           models.TransactionStatusPending,
				IdempotencyKey:   "cancel:" + originalIdempotencyKey,
				RefTransactionID: original.ID,
				BalanceBefore:    customer.TotalPoints,
				Metadata:         metadata,
			}
			if err := s.txRepo.Create(txCtx, adjust); err != nil {
				if isDuplicateKey(err) {
					return ErrAlreadyCancelled
				}
				return fmt.Errorf("failed to create adjust transaction: %w", err)
			}
			pendingTxID = adjust.ID

			if err := s.txRepo.UpdateStatus(txCtx, original.ID, models.TransactionStatusCancelled); err != nil {
				return fmt.Errorf("failed to cancel original transaction: %w", err)
			}

			expiresAt, err := s.computeLotExpiry(txCtx, customer)
			if err != nil {
				return err
			}
			lot := &models.PointLot{
				CustomerID:     original.CustomerID,
				Amount:         restore,
				OriginalAmount: restore,
				Status:         models.LotStatusActive,
				EarnedAt:       time.Now(),
				ExpiresAt:      expiresAt,
				TransactionID:  adjust.ID,
			}
			if err := s.lotRepo.Create(txCtx, lot); err != nil {
				return fmt.Errorf("failed to create restored lot: %w", err)
			}

			if err := s.customerRepo.IncrementPoints(txCtx, original.CustomerID, restore); err != nil {
				return fmt.Errorf("failed to restore balance: %w", err)
			}

			adjust.Status = models.TransactionStatusCompleted
			adjust.BalanceAfter = customer.TotalPoints + restore
			if err := s.txRepo.Update(txCtx, adjust); err != nil {
				return fmt.Errorf("failed to complete adjust transaction: %w", err)
			}

			result = &LedgerResult{Transaction: adjust, NewBalance: adjust.BalanceAfter}
			return nil
		})
	}

	if err := s.withRetry(ctx, op); err != nil {
		if !errors.Is(err, ErrAlreadyCancelled) {
			s.markFailedBestEffort(pendingTxID)
		}
		return nil, err
	}

	s.publish("cancel_redemption", result.Transaction)
	return result, nil
}

// GetBalance returns the denormalized total plus the amount expiring within
// the window.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, customerID primitive.ObjectID, windowDays int) (*models.Balance, error) {
	if windowDays <= 0 {
		windowDays = s.cfg.ExpiringSoonWindowDays
	}

	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer %s", ErrNotFound, customerID.Hex())
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	now := time.Now()
	expiring, err := s.lotRepo.SumExpiringBetween(ctx, customerID, now, now.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, fmt.Errorf("failed to sum expiring lots: %w", err)
	}

	balance := &models.Balance{
		CustomerID:    customerID,
		Total:         customer.TotalPoints,
		ExpiringSoon:  expiring,
		WindowDays:    windowDays,
		CurrentTierID: customer.TierID,
	}
	lots, err := s.lotRepo.FindActiveByCustomer(ctx, customerID, now)
	if err == nil && len(lots) > 0 {
		next := lots[0].ExpiresAt
		balance.NextExpiry = &next
	}
	return balance, nil
}

// GetTransactions returns the customer's transaction history, newest first.
func (s *LedgerServiceImpl) GetTransactions(ctx context.Context, customerID primitive.ObjectID, page, limit int) ([]*models.Transaction, error) {
	return s.txRepo.FindByCustomer(ctx, customerID, page, limit)
}

// ExpireDueLots sweeps active lots whose expiry (plus the configured grace
// period) has passed. Each lot gets its own unit of work; a lot that fails
// stays active and is retried on the next sweep. Running the sweep twice
// back to back is a no-op the second time: expired lots no longer match.
func (s *LedgerServiceImpl) ExpireDueLots(ctx context.Context) (*models.SweepReport, error) {
	started := time.Now()
	report := &models.SweepReport{StartedAt: started}

	cutoff := started
	if rules, err := s.rulesRepo.FindActive(ctx); err == nil && rules.GracePeriodDays > 0 {
		cutoff = cutoff.AddDate(0, 0, -rules.GracePeriodDays)
	}

	batchSize := s.cfg.ExpiryBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	for {
		lots, err := s.lotRepo.FindExpired(ctx, cutoff, batchSize)
		if err != nil {
			report.Duration = time.Since(started).String()
			return report, fmt.Errorf("failed to list expired lots: %w", err)
		}
		if len(lots) == 0 {
			break
		}

		progressed := false
		for _, lot := range lots {
			report.Scanned++
			expired, err := s.expireLot(ctx, lot)
			if err != nil {
				report.Failed++
				slog.Error("Failed to expire lot; will retry next sweep",
					"error", err, "lotId", lot.ID.Hex(), "customerId", lot.CustomerID.Hex())
				continue
			}
			progressed = true
			if expired > 0 {
				report.Expired++
				report.PointsExpired += expired
			}
		}
		// Every lot in the batch failed: bail out rather than spin on the
		// same broken records.
		if !progressed {
			break
		}
		if len(lots) < batchSize {
			break
		}
	}

	report.Duration = time.Since(started).String()
	return report, nil
}

// expireLot retires one lot in its own unit of work and returns the number
// of points it expired — zero when another sweep got there first. The expire
// transaction's key is derived from the lot id, so a concurrent or repeated
// sweep cannot double-expire it.
func (s *LedgerServiceImpl) expireLot(ctx context.Context, lot *models.PointLot) (int64, error) {
	var expired int64
	err := s.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.lotRepo.FindByID(txCtx, lot.ID)
		if err != nil {
			return fmt.Errorf("failed to reload lot: %w", err)
		}
		if current.Status != models.LotStatusActive {
			return nil // already processed by a concurrent sweep
		}

		customer, err := s.customerRepo.FindByID(txCtx, current.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to load customer: %w", err)
		}

		tx := &models.Transaction{
			CustomerID:       current.CustomerID,
			Type:             models.TransactionTypeExpire,
			Points:           -current.Amount,
			Status:           models.TransactionStatusCompleted,
			IdempotencyKey:   "expire:" + current.ID.Hex(),
			RefTransactionID: current.TransactionID,
			BalanceBefore:    customer.TotalPoints,
			BalanceAfter:     customer.TotalPoints - current.Amount,
		}
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return fmt.Errorf("failed to create expire transaction: %w", err)
		}

		current.Status = models.LotStatusExpired
		if err := s.lotRepo.Update(txCtx, current); err != nil {
			return fmt.Errorf("failed to mark lot expired: %w", err)
		}

		if err := s.customerRepo.IncrementPoints(txCtx, current.CustomerID, -current.Amount); err != nil {
			return fmt.Errorf("failed to decrement balance: %w", err)
		}

		expired = current.Amount
		s.publish("expire", tx)
		return nil
	})
	return expired, err
}

// --- helpers ---

// computeLotExpiry: now + default lifetime + the tier-specific extension
// from the active expiration rules. With no active rules the configured
// default lifetime applies and the gap is logged, not fatal.
func (s *LedgerServiceImpl) computeLotExpiry(ctx context.Context, customer *models.Customer) (time.Time, error) {
	lifetimeDays := s.cfg.DefaultLifetimeDays
	extensionDays := 0

	rules, err := s.rulesRepo.FindActive(ctx)
	switch {
	case err == nil:
		lifetimeDays = rules.DefaultLifetimeDays
		if !customer.TierID.IsZero() {
			tier, terr := s.tierRepo.FindByID(ctx, customer.TierID)
			if terr == nil {
				extensionDays = rules.ExtensionForLevel(tier.HierarchyLevel)
			} else if !isNotFound(terr) {
				return time.Time{}, fmt.Errorf("failed to load tier: %w", terr)
			}
		}
	case isNotFound(err):
		slog.Warn("No active points expiration rules; using default lifetime",
			"defaultLifetimeDays", lifetimeDays)
	default:
		return time.Time{}, fmt.Errorf("failed to load expiration rules: %w", err)
	}

	if lifetimeDays <= 0 {
		return time.Time{}, fmt.Errorf("%w: lot lifetime resolves to %d days", ErrConfiguration, lifetimeDays)
	}
	return time.Now().AddDate(0, 0, lifetimeDays+extensionDays), nil
}

// replayIfProcessed returns the prior result when the key was already
// processed, nil/nil when the key is fresh.
func (s *LedgerServiceImpl) replayIfProcessed(ctx context.Context, key string) (*LedgerResult, error) {
	prior, err := s.txRepo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if !prior.Status.Terminal() {
		// A concurrent submission is mid-flight; the caller retries later.
		return nil, &DuplicateRequestError{IdempotencyKey: key}
	}
	if prior.Status == models.TransactionStatusFailed {
		// The prior attempt died before applying effects (possible without
		// transactions). Replaying it as a success would make a lost write
		// look processed.
		return nil, fmt.Errorf("%w: prior attempt with key %q failed before applying effects", ErrTransientStore, key)
	}
	slog.Info("Duplicate request observed; returning prior result",
		"idempotencyKey", key, "transactionId", prior.ID.Hex(), "status", prior.Status)
	return &LedgerResult{Transaction: prior, NewBalance: prior.BalanceAfter, Duplicate: true}, nil
}

// replayProcessed is replayIfProcessed for the post-race path, where the
// record must exist.
func (s *LedgerServiceImpl) replayProcessed(ctx context.Context, key string) (*LedgerResult, error) {
	result, err := s.replayIfProcessed(ctx, key)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: transaction with key %q", ErrNotFound, key)
	}
	return result, nil
}

// recordRejection writes the rejected transaction for a business rejection.
// Best-effort: a failure here must not mask the rejection itself.
func (s *LedgerServiceImpl) recordRejection(ctx context.Context, customerID primitive.ObjectID, amount int64, txType models.TransactionType, key string, metadata map[string]interface{}) {
	tx := &models.Transaction{
		CustomerID:     customerID,
		Type:           txType,
		Points:         -amount,
		Status:         models.TransactionStatusRejected,
		IdempotencyKey: key,
		Metadata:       metadata,
	}
	if err := s.txRepo.Create(ctx, tx); err != nil && !isDuplicateKey(err) {
		slog.Error("Failed to record rejected transaction", "error", err, "idempotencyKey", key)
		return
	}
	s.publish("reject", tx)
}

// markFailedBestEffort marks a leftover pending transaction failed. Only
// meaningful without real transactions: with rollback the pending record
// never survives a failure.
func (s *LedgerServiceImpl) markFailedBestEffort(txID primitive.ObjectID) {
	if s.uow.Transactional() || txID.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.txRepo.UpdateStatus(ctx, txID, models.TransactionStatusFailed); err != nil {
		slog.Error("Failed to mark pending transaction failed", "error", err, "transactionId", txID.Hex())
	}
}

// withRetry retries transient store conflicts with exponential backoff.
// Business rejections and validation errors pass through untouched.
func (s *LedgerServiceImpl) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !isTransient(err) || attempt >= s.cfg.MaxRetries {
			break
		}
		slog.Warn("Transient store conflict; retrying ledger operation",
			"error", err, "attempt", attempt+1, "backoff", backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransientStore, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: retries exhausted: %v", ErrTransientStore, err)
	}
	return err
}

func (s *LedgerServiceImpl) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func (s *LedgerServiceImpl) publish(action string, tx *models.Transaction) {
	if s.auditor == nil || tx == nil {
		return
	}
	s.auditor.Publish(audit.Event{
		Action:        action,
		CustomerID:    tx.CustomerID,
		TransactionID: tx.ID,
		Points:        tx.Points,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		Details:       tx.Metadata,
	})
}

// triggerUpgradeCheck runs the tier evaluation after an Earn. Best-effort:
// the points are already earned, so an evaluation bug must not surface.
func (s *LedgerServiceImpl) triggerUpgradeCheck(customerID primitive.ObjectID) {
	if s.upgrades == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Tier upgrade evaluation panicked", "panic", r, "customerId", customerID.Hex())
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := s.upgrades.CheckUpgrade(ctx, customerID, true); err != nil {
			slog.Error("Tier upgrade evaluation failed after earn",
				"error", err, "customerId", customerID.Hex())
		}
	}()
}
