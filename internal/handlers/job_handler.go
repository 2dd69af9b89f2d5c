package handlers

import (
	"net/http"
	"time"

	"github.com/Xyvin-Technologies-Pvt-Ltd/backend-loyalty-demo-sub000/internal/services"
	"github.com/gin-gonic/gin"
)

// JobHandler exposes manual triggers for the batch jobs, for deployments
// that run them from an external scheduler instead of the built-in one.
type JobHandler struct {
	ledgerService services.LedgerService
	tierService   services.TierService
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(ledgerService services.LedgerService, tierService services.TierService) *JobHandler {
	return &JobHandler{
		ledgerService: ledgerService,
		tierService:   tierService,
	}
}

// RunExpirySweep handles POST /admin/jobs/expiry/run
func (h *JobHandler) RunExpirySweep(c *gin.Context) {
	report, err := h.ledgerService.ExpireDueLots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// RunDowngrade handles POST /admin/jobs/downgrade/run
func (h *JobHandler) RunDowngrade(c *gin.Context) {
	report, err := h.tierService.EvaluateDowngrades(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
