package handlers

import (
	"net/http"
	"strconv"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LedgerHandler handles point ledger HTTP requests
type LedgerHandler struct {
	ledgerService services.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService services.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

type earnRequest struct {
	CustomerID     string                 `json:"customerId" binding:"required"`
	Amount         int64                  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string                 `json:"idempotencyKey" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type redeemRequest struct {
	CustomerID     string                 `json:"customerId" binding:"required"`
	Amount         int64                  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string                 `json:"idempotencyKey" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type convertRequest struct {
	CustomerID     string                 `json:"customerId" binding:"required"`
	Points         int64                  `json:"points" binding:"required,gt=0"`
	Rate           string                 `json:"rate" binding:"required"`
	Currency       string                 `json:"currency" binding:"required"`
	IdempotencyKey string                 `json:"idempotencyKey" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type cancelRequest struct {
	OriginalIdempotencyKey string                 `json:"originalIdempotencyKey" binding:"required"`
	Metadata               map[string]interface{} `json:"metadata"`
}

// Earn handles POST /points/earn
func (h *LedgerHandler) Earn(c *gin.Context) {
	var req earnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customerID, err := primitive.ObjectIDFromHex(req.CustomerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	result, err := h.ledgerService.Earn(c.Request.Context(), services.EarnInput{
		CustomerID:     customerID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// Redeem handles POST /points/redeem
func (h *LedgerHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customerID, err := primitive.ObjectIDFromHex(req.CustomerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	result, err := h.ledgerService.Redeem(c.Request.Context(), services.RedeemInput{
		CustomerID:     customerID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// Convert handles POST /points/convert
func (h *LedgerHandler) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customerID, err := primitive.ObjectIDFromHex(req.CustomerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || rate.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversion rate"})
		return
	}

	result, err := h.ledgerService.Convert(c.Request.Context(), services.ConvertInput{
		CustomerID:     customerID,
		Points:         req.Points,
		Rate:           rate,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// CancelRedemption handles POST /points/redemptions/cancel
func (h *LedgerHandler) CancelRedemption(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ledgerService.CancelRedemption(c.Request.Context(), req.OriginalIdempotencyKey, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// GetBalance handles GET /customers/:id/balance
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	customerID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	windowDays, _ := strconv.Atoi(c.DefaultQuery("windowDays", "0"))

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), customerID, windowDays)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GetTransactions handles GET /customers/:id/transactions
func (h *LedgerHandler) GetTransactions(c *gin.Context) {
	customerID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID format"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	transactions, err := h.ledgerService.GetTransactions(c.Request.Context(), customerID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}
