package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Refund reverses a charge, or restores a consumed free slot, exactly once.
// The presence of a refund entry is the idempotency guard. It returns true
// only when a reversal of balance or quota actually occurred.
func (d *Domain) Refund(ctx context.Context, userID uuid.UUID, feature, taskID, reason string) (bool, error) {
	feature = strings.TrimSpace(feature)
	taskID = strings.TrimSpace(taskID)
	if userID == uuid.Nil || feature == "" || taskID == "" {
		return false, ErrInvalidRequest
	}
	if _, err := d.catalog.Get(feature); err != nil {
		return false, err
	}

	var reversed bool
	err := d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		rec, err := s.FindTask(taskID)
		if err != nil {
			return err
		}
		if rec == nil {
			d.logger.Debug("refund for unknown task ignored",
				zap.String("task_id", taskID),
				zap.String("feature", feature),
			)
			return nil
		}
		if rec.Refunded() {
			d.logger.Debug("duplicate refund absorbed",
				zap.String("task_id", taskID),
				zap.String("feature", feature),
			)
			return nil
		}

		now := d.now()

		switch rec.Status {
		case model.TaskStatusPending:
			// Cancellation of work that never completed; nothing was charged.
			rec.Status = model.TaskStatusFailed
			rec.CompletedAt = &now
			return s.SaveTask(rec)

		case model.TaskStatusSucceeded:
			led := s.Ledger()
			amount := rec.ChargedCost
			if rec.IsFreeUsage {
				amount = 0
			} else if amount > 0 {
				acct := s.Account()
				acct.Balance += amount
				led.TotalCreditsCharged -= amount
				if err := s.SaveAccount(); err != nil {
					return err
				}
			}
			if led.UsageCount > 0 {
				led.UsageCount--
			}
			if err := s.CreateRefund(&model.RefundEntry{
				TaskRecordID: rec.ID,
				TaskID:       rec.TaskID,
				Amount:       amount,
				Reason:       reason,
				RefundedAt:   now,
			}); err != nil {
				return err
			}
			rec.Status = model.TaskStatusRefunded
			if err := s.SaveTask(rec); err != nil {
				return err
			}
			if err := s.SaveLedger(); err != nil {
				return err
			}

			reversed = true
			if d.metrics != nil {
				d.metrics.RefundsTotal.WithLabelValues(feature, reason).Inc()
				if amount > 0 {
					d.metrics.CreditsRefundedTotal.WithLabelValues(feature).Add(float64(amount))
				}
			}
			d.logger.Info("task refunded",
				zap.String("task_id", taskID),
				zap.String("feature", feature),
				zap.String("reason", reason),
				zap.Int64("amount", amount),
			)
			return nil

		case model.TaskStatusFailed, model.TaskStatusExpired:
			// Nothing to reverse; keep a zero-amount entry for the audit
			// trail and to pin the idempotency guard.
			return s.CreateRefund(&model.RefundEntry{
				TaskRecordID: rec.ID,
				TaskID:       rec.TaskID,
				Amount:       0,
				Reason:       reason,
				RefundedAt:   now,
			})

		default:
			return fmt.Errorf("%w: refund from %s", ErrIllegalTransition, rec.Status)
		}
	})
	if err != nil {
		return false, fmt.Errorf("refund: %w", err)
	}
	return reversed, nil
}
