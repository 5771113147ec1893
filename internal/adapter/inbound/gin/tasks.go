package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/domain/billing"
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/inbound"
)

// taskBillingHandler implements inbound.TaskBillingHttpPort. These routes are
// called by task workers with the service token, not by end users, so the
// user id travels in the body instead of the auth context.
type taskBillingHandler struct {
	domain *billing.Domain
}

// NewTaskBillingHandler creates a new task billing HTTP handler.
func NewTaskBillingHandler(domain *billing.Domain) inbound.TaskBillingHttpPort {
	return &taskBillingHandler{domain: domain}
}

func (h *taskBillingHandler) RecordTask(c *gin.Context) {
	var req struct {
		UserID   uuid.UUID         `json:"user_id" binding:"required"`
		Feature  string            `json:"feature" binding:"required"`
		TaskID   string            `json:"task_id" binding:"required"`
		Decision *billing.Decision `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.domain.RecordCreated(c.Request.Context(), req.UserID, req.Feature, req.TaskID, req.Decision); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "recorded"})
}

func (h *taskBillingHandler) RecordCompletion(c *gin.Context) {
	taskID := c.Param("task_id")

	var req struct {
		UserID  uuid.UUID                  `json:"user_id" binding:"required"`
		Feature string                     `json:"feature" binding:"required"`
		Outcome billing.Outcome            `json:"outcome" binding:"required"`
		Metrics *billing.CompletionMetrics `json:"metrics"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Outcome.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be succeeded or failed"})
		return
	}

	if err := h.domain.RecordCompletion(c.Request.Context(), req.UserID, req.Feature, taskID, req.Outcome, req.Metrics); err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "processed"})
}

func (h *taskBillingHandler) RefundTask(c *gin.Context) {
	taskID := c.Param("task_id")

	var req struct {
		UserID  uuid.UUID `json:"user_id" binding:"required"`
		Feature string    `json:"feature" binding:"required"`
		Reason  string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reversed, err := h.domain.Refund(c.Request.Context(), req.UserID, req.Feature, taskID, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reversed": reversed})
}

// Compile-time check
var _ inbound.TaskBillingHttpPort = (*taskBillingHandler)(nil)
