package handlers

import (
	"net/http"
	"strconv"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/models"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/repositories"
	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TierHandler handles tier evaluation and tier configuration requests
type TierHandler struct {
	tierService  services.TierService
	tierRepo     repositories.TierRepository
	criteriaRepo repositories.TierCriteriaRepository
	rulesRepo    repositories.ExpirationRulesRepository
}

// NewTierHandler creates a new TierHandler
func NewTierHandler(tierService services.TierService, tierRepo repositories.TierRepository, criteriaRepo repositories.TierCriteriaRepository, rulesRepo repositories.ExpirationRulesRepository) *TierHandler {
	return &TierHandler{
		tierService:  tierService,
		tierRepo:     tierRepo,
		criteriaRepo: criteriaRepo,
		rulesRepo:    rulesRepo,
	}
}

// CheckEligibility handles GET /customers/:id/tier/eligibility
// Pass ?apply=true to promote the customer when eligible.
func (h *TierHandler) CheckEligibility(c *gin.Context) {
	customerID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	apply, _ := strconv.ParseBool(c.DefaultQuery("apply", "false"))

	report, err := h.tierService.CheckUpgrade(c.Request.Context(), customerID, apply)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetTiers handles GET /admin/tiers
func (h *TierHandler) GetTiers(c *gin.Context) {
	tiers, err := h.tierRepo.FindAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tiers: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, tiers)
}

// CreateTier handles POST /admin/tiers
func (h *TierHandler) CreateTier(c *gin.Context) {
	var tier models.Tier
	if err := c.ShouldBindJSON(&tier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier.IsActive = true
	if err := h.tierRepo.Create(c.Request.Context(), &tier); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tier: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tier)
}

// UpdateTier handles PUT /admin/tiers/:id
func (h *TierHandler) UpdateTier(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier ID format"})
		return
	}

	var tier models.Tier
	if err := c.ShouldBindJSON(&tier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tier.ID = id

	if err := h.tierRepo.Update(c.Request.Context(), &tier); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tier: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, tier)
}

// GetTierCriteria handles GET /admin/tiers/:id/criteria
func (h *TierHandler) GetTierCriteria(c *gin.Context) {
	tierID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier ID format"})
		return
	}

	criteria, err := h.criteriaRepo.FindByTier(c.Request.Context(), tierID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get criteria: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, criteria)
}

// UpsertTierCriteria handles PUT /admin/tiers/:id/criteria
func (h *TierHandler) UpsertTierCriteria(c *gin.Context) {
	tierID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier ID format"})
		return
	}

	var criteria models.TierEligibilityCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	criteria.TierID = tierID
	criteria.IsActive = true

	if err := h.criteriaRepo.Upsert(c.Request.Context(), &criteria); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save criteria: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, criteria)
}

// GetExpirationRules handles GET /admin/expiration-rules
func (h *TierHandler) GetExpirationRules(c *gin.Context) {
	rules, err := h.rulesRepo.FindActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active expiration rules configured"})
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateExpirationRules handles POST /admin/expiration-rules
// The new record supersedes the previously active one.
func (h *TierHandler) CreateExpirationRules(c *gin.Context) {
	var rules models.PointsExpirationRules
	if err := c.ShouldBindJSON(&rules); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if rules.DefaultLifetimeDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "defaultLifetimeDays must be positive"})
		return
	}

	rules.IsActive = true
	if err := h.rulesRepo.Create(c.Request.Context(), &rules); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create expiration rules: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rules)
}
