package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/api/routes"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/audit"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/handlers"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	mongorepo "github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories/mongodb"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/pkg/mongodb"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
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

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelIndex()
	if err := mongorepo.EnsureIndexes(indexCtx, db); err != nil {
		logger.Error("Failed to ensure indexes", "error", err)
		os.Exit(1)
	}

	// The capability flag requires both the config opting in and the
	// topology actually supporting sessions.
	transactional := cfg.MongoDB.UseTransactions
	if transactional {
		probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
		transactional = mongoClient.SupportsTransactions(probeCtx)
		cancelProbe()
		if !transactional {
			logger.Warn("MongoDB.UseTransactions is set but the deployment is standalone; running best-effort")
		}
	}

	// Repositories
	var customerRepo repositories.CustomerRepository = mongorepo.NewCustomerRepository(db)
	var lotRepo repositories.PointLotRepository = mongorepo.NewPointLotRepository(db)
	var txRepo repositories.TransactionRepository = mongorepo.NewTransactionRepository(db)
	var tierRepo repositories.TierRepository = mongorepo.NewTierRepository(db)
	var criteriaRepo repositories.TierCriteriaRepository = mongorepo.NewTierCriteriaRepository(db)
	var rulesRepo repositories.ExpirationRulesRepository = mongorepo.NewExpirationRulesRepository(db)
	var adminRepo repositories.AdminUserRepository = mongorepo.NewAdminUserRepository(db)
	var uow repositories.UnitOfWork = mongorepo.NewUnitOfWork(mongoClient.Raw(), transactional)

	// Audit queue
	auditQueue := audit.NewQueue(cfg.Audit.QueueSize, cfg.Audit.Workers, &audit.LogWriter{Logger: logger})
	defer auditQueue.Close()

	// Services
	ledgerService := services.NewLedgerService(uow, customerRepo, lotRepo, txRepo, tierRepo, rulesRepo, auditQueue, cfg.Ledger)
	tierService := services.NewTierService(uow, customerRepo, txRepo, tierRepo, criteriaRepo, auditQueue)
	ledgerService.SetUpgradeEvaluator(tierService)
	authService := services.NewAuthService(adminRepo, cfg)

	// Handlers
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Customer: handlers.NewCustomerHandler(customerRepo),
		Ledger:   handlers.NewLedgerHandler(ledgerService),
		Tier:     handlers.NewTierHandler(tierService, tierRepo, criteriaRepo, rulesRepo),
		Job:      handlers.NewJobHandler(ledgerService, tierService),
	}

	router := routes.SetupRouter(cfg, logger, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Server.Port, "transactional", transactional)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
