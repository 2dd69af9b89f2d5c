package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"golang.org/x/exp/slog"
)

// Scheduler runs the background ledger jobs: the daily expiry sweep and
// the monthly tier downgrade evaluation. Both jobs are idempotent, so a
// restart mid-cycle is safe.
type Scheduler struct {
	ledger services.LedgerService
	tiers  services.TierService
	cfg    config.JobsConfig
	logger *slog.Logger

	sweepTicker     *time.Ticker
	downgradeTicker *time.Ticker
	stop            chan struct{}
	wg              sync.WaitGroup
	mu              sync.Mutex
	started         bool

	// lastDowngradeMonth guards against running the downgrade more than
	// once within the same calendar month.
	lastDowngradeMonth time.Time
}

// NewScheduler creates a scheduler for the configured job cadences.
func NewScheduler(ledger services.LedgerService, tiers services.TierService, cfg config.JobsConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ledger: ledger,
		tiers:  tiers,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Start begins the background jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.sweepTicker = time.NewTicker(s.cfg.ExpirySweepInterval)
	s.downgradeTicker = time.NewTicker(s.cfg.DowngradeCheckEvery)
	s.wg.Add(1)
	go s.run()

	s.logger.Info("scheduler started",
		"sweepInterval", s.cfg.ExpirySweepInterval.String(),
		"downgradeDayOfMonth", s.cfg.DowngradeDayOfMonth)
}

// Stop stops the background jobs and waits for any in-flight run. The
// mutex is released before waiting: an in-flight downgrade tick takes the
// same mutex in maybeRunDowngrade, so waiting under it would deadlock.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false

	s.sweepTicker.Stop()
	s.downgradeTicker.Stop()
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Sweep immediately on start so a long-down instance catches up.
	s.RunExpirySweep(context.Background())

	for {
		select {
		case <-s.sweepTicker.C:
			s.RunExpirySweep(context.Background())
		case <-s.downgradeTicker.C:
			s.maybeRunDowngrade(time.Now())
		case <-s.stop:
			return
		}
	}
}

// RunExpirySweep runs one expiry sweep pass. Also exposed for the manual
// trigger endpoint.
func (s *Scheduler) RunExpirySweep(ctx context.Context) {
	report, err := s.ledger.ExpireDueLots(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if report.Expired > 0 || report.Failed > 0 {
		s.logger.Info("expiry sweep completed",
			"scanned", report.Scanned,
			"expired", report.Expired,
			"pointsExpired", report.PointsExpired,
			"failed", report.Failed)
	}
}

func (s *Scheduler) maybeRunDowngrade(now time.Time) {
	if now.Day() != s.cfg.DowngradeDayOfMonth {
		return
	}
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	s.mu.Lock()
	if s.lastDowngradeMonth.Equal(month) {
		s.mu.Unlock()
		return
	}
	s.lastDowngradeMonth = month
	s.mu.Unlock()

	s.RunDowngrade(context.Background(), now)
}

// RunDowngrade runs one downgrade evaluation pass. Also exposed for the
// manual trigger endpoint.
func (s *Scheduler) RunDowngrade(ctx context.Context, now time.Time) {
	report, err := s.tiers.EvaluateDowngrades(ctx, now)
	if err != nil {
		s.logger.Error("downgrade evaluation failed", "error", err)
		return
	}
	s.logger.Info("downgrade evaluation completed",
		"evaluated", report.Evaluated,
		"downgraded", report.Downgraded,
		"retained", report.Retained,
		"failed", report.Failed)
}
