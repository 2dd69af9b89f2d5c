package routes

import (
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/config"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/handlers"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/middleware"
	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// Handlers bundles the constructed handlers for router assembly.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Customer *handlers.CustomerHandler
	Ledger   *handlers.LedgerHandler
	Tier     *handlers.TierHandler
	Job      *handlers.JobHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, logger *slog.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Add middleware
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(logger))

	// Public routes
	public := router.Group("/api/v1")
	{
		// Health check
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})

		// Auth routes
		auth := public.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
		}
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg))
	{
		// Customer routes
		customers := protected.Group("/customers")
		{
			customers.GET("", h.Customer.GetAllCustomers)
			customers.GET("/:id", h.Customer.GetCustomerByID)
			customers.POST("", h.Customer.CreateCustomer)
			customers.GET("/:id/balance", h.Ledger.GetBalance)
			customers.GET("/:id/transactions", h.Ledger.GetTransactions)
			customers.GET("/:id/tier/eligibility", h.Tier.CheckEligibility)
		}

		// Ledger routes
		points := protected.Group("/points")
		{
			points.POST("/earn", h.Ledger.Earn)
			points.POST("/redeem", h.Ledger.Redeem)
			points.POST("/convert", h.Ledger.Convert)
			points.POST("/redemptions/cancel", h.Ledger.CancelRedemption)
		}

		// Admin configuration routes
		admin := protected.Group("/admin")
		{
			admin.GET("/tiers", h.Tier.GetTiers)
			admin.POST("/tiers", h.Tier.CreateTier)
			admin.PUT("/tiers/:id", h.Tier.UpdateTier)
			admin.GET("/tiers/:id/criteria", h.Tier.GetTierCriteria)
			admin.PUT("/tiers/:id/criteria", h.Tier.UpsertTierCriteria)
			admin.GET("/expiration-rules", h.Tier.GetExpirationRules)
			admin.POST("/expiration-rules", h.Tier.CreateExpirationRules)

			admin.POST("/jobs/expiry/run", h.Job.RunExpirySweep)
			admin.POST("/jobs/downgrade/run", h.Job.RunDowngrade)
		}
	}

	return router
}
