package gin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pixelmint/server/internal/domain/billing"
	"github.com/pixelmint/server/internal/port/inbound"
)

// billingHandler implements inbound.BillingHttpPort.
type billingHandler struct {
	domain *billing.Domain
}

// NewBillingHandler creates a new billing HTTP handler.
func NewBillingHandler(domain *billing.Domain) inbound.BillingHttpPort {
	return &billingHandler{domain: domain}
}

func (h *billingHandler) CheckAccess(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Feature string              `json:"feature" binding:"required"`
		Params  billing.UsageParams `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.domain.CheckAccess(c.Request.Context(), userID, req.Feature, req.Params)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (h *billingHandler) Charge(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}

	var req struct {
		Feature string              `json:"feature" binding:"required"`
		Params  billing.UsageParams `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.domain.Charge(c.Request.Context(), userID, req.Feature, key, req.Params)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *billingHandler) GetBalance(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		return
	}

	balance, err := h.domain.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *billingHandler) GetUsageSummary(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		return
	}

	feature := c.Param("feature")

	limit := 0
	if raw := c.Query("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recent parameter"})
			return
		}
		limit = n
	}

	summary, err := h.domain.GetLedgerSummary(c.Request.Context(), userID, feature, limit)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Compile-time check
var _ inbound.BillingHttpPort = (*billingHandler)(nil)
