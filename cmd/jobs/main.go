package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/jobs"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	mongorepo "github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories/mongodb"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/pkg/mongodb"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

// The jobs runner hosts the expiry sweep and the monthly downgrade
// evaluation. It is a separate binary so deployments can scale the API
// without multiplying the batch work.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	mongoClient, err := mongodb.NewClient(cfg.MongoDB.URI)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	transactional := cfg.MongoDB.UseTransactions
	if transactional {
		probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
		transactional = mongoClient.SupportsTransactions(probeCtx)
		cancelProbe()
	}

	var customerRepo repositories.CustomerRepository = mongorepo.NewCustomerRepository(db)
	var lotRepo repositories.PointLotRepository = mongorepo.NewPointLotRepository(db)
	var txRepo repositories.TransactionRepository = mongorepo.NewTransactionRepository(db)
	var tierRepo repositories.TierRepository = mongorepo.NewTierRepository(db)
	var criteriaRepo repositories.TierCriteriaRepository = mongorepo.NewTierCriteriaRepository(db)
	var rulesRepo repositories.ExpirationRulesRepository = mongorepo.NewExpirationRulesRepository(db)
	var uow repositories.UnitOfWork = mongorepo.NewUnitOfWork(mongoClient.Raw(), transactional)

	auditQueue := audit.NewQueue(cfg.Audit.QueueSize, cfg.Audit.Workers, &audit.LogWriter{Logger: logger})
	defer auditQueue.Close()

	ledgerService := services.NewLedgerService(uow, customerRepo, lotRepo, txRepo, tierRepo, rulesRepo, auditQueue, cfg.Ledger)
	tierService := services.NewTierService(uow, customerRepo, txRepo, tierRepo, criteriaRepo, auditQueue)

	scheduler := jobs.NewScheduler(ledgerService, tierService, cfg.Jobs, logger)
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down jobs runner")

	scheduler.Stop()
	logger.Info("Jobs runner exiting")
}
