package inbound

import "github.com/gin-gonic/gin"

// BillingHttpPort defines the user-facing billing HTTP handler interface.
type BillingHttpPort interface {
	// CheckAccess handles POST /api/v1/billing/access
	CheckAccess(c *gin.Context)

	// Charge handles POST /api/v1/billing/charges
	Charge(c *gin.Context)

	// GetBalance handles GET /api/v1/credits/balance
	GetBalance(c *gin.Context)

	// GetUsageSummary handles GET /api/v1/usage/:feature/summary
	GetUsageSummary(c *gin.Context)
}

// TaskBillingHttpPort defines the service-to-service task billing interface,
// called by task workers rather than end users.
type TaskBillingHttpPort interface {
	// RecordTask handles POST /internal/v1/billing/tasks
	RecordTask(c *gin.Context)

	// RecordCompletion handles POST /internal/v1/billing/tasks/:task_id/completion
	RecordCompletion(c *gin.Context)

	// RefundTask handles POST /internal/v1/billing/tasks/:task_id/refund
	RefundTask(c *gin.Context)
}
