package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
)

// LedgerSummary is the reporting view of one (user, feature) ledger.
type LedgerSummary struct {
	Feature             string              `json:"feature"`
	UsageCount          int64               `json:"usage_count"`
	TotalCreditsCharged int64               `json:"total_credits_charged"`
	RecentTasks         []*model.TaskRecord `json:"recent_tasks,omitempty"`
}

// GetBalance returns the user's credit balance. Users without an account yet
// report zero.
func (d *Domain) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, ErrInvalidRequest
	}
	acct, err := d.repo.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// GetLedgerSummary returns usage counters and recent task records for one
// (user, feature) pair. A never-used pair reports zeros.
func (d *Domain) GetLedgerSummary(ctx context.Context, userID uuid.UUID, feature string, recentLimit int) (*LedgerSummary, error) {
	feature = strings.TrimSpace(feature)
	if userID == uuid.Nil || feature == "" {
		return nil, ErrInvalidRequest
	}
	if _, err := d.catalog.Get(feature); err != nil {
		return nil, err
	}

	summary := &LedgerSummary{Feature: feature}

	led, err := d.repo.GetLedger(ctx, userID, feature)
	if err != nil {
		return nil, err
	}
	if led == nil {
		return summary, nil
	}
	summary.UsageCount = led.UsageCount
	summary.TotalCreditsCharged = led.TotalCreditsCharged

	if recentLimit > 0 {
		tasks, err := d.repo.ListTasks(ctx, userID, feature, recentLimit)
		if err != nil {
			return nil, err
		}
		summary.RecentTasks = tasks
	}

	return summary, nil
}
