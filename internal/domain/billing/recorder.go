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

// Outcome is the terminal result a completion signal reports.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// IsValid checks if the outcome is valid.
func (o Outcome) IsValid() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// RecordCreated records that a unit of work was accepted by the provider.
// Nothing is charged yet; the decision from the gate fixes whether the task
// occupies a free slot and what the cost estimate is. A duplicate submission
// signal for the same taskID is a no-op.
func (d *Domain) RecordCreated(ctx context.Context, userID uuid.UUID, feature, taskID string, decision *Decision) error {
	feature = strings.TrimSpace(feature)
	taskID = strings.TrimSpace(taskID)
	if userID == uuid.Nil || feature == "" || taskID == "" {
		return ErrInvalidRequest
	}
	if decision == nil || decision.Rejected() {
		return fmt.Errorf("%w: rejected decisions produce no task", ErrInvalidDecision)
	}
	if _, err := d.catalog.Get(feature); err != nil {
		return err
	}

	return d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		if existing, err := s.FindTask(taskID); err != nil {
			return err
		} else if existing != nil {
			d.logger.Debug("duplicate task creation absorbed",
				zap.String("task_id", taskID),
				zap.String("feature", feature),
			)
			return nil
		}

		rec := &model.TaskRecord{
			TaskID:        taskID,
			UserID:        userID,
			Feature:       feature,
			Status:        model.TaskStatusPending,
			IsFreeUsage:   decision.Free(),
			EstimatedCost: decision.Cost,
			CreatedAt:     d.now(),
		}
		return s.CreateTask(rec)
	})
}

// RecordCompletion applies a completion signal. It is safe to call any number
// of times with the same arguments: the first signal that finds the record
// Pending wins and performs the charge; every later one is absorbed by the
// terminal-state check, except that a Succeeded signal carrying metrics that
// re-price a dynamic feature flows into the correction path.
func (d *Domain) RecordCompletion(ctx context.Context, userID uuid.UUID, feature, taskID string, outcome Outcome, actual *CompletionMetrics) error {
	feature = strings.TrimSpace(feature)
	taskID = strings.TrimSpace(taskID)
	if userID == uuid.Nil || feature == "" || taskID == "" || !outcome.IsValid() {
		return ErrInvalidRequest
	}

	feat, err := d.catalog.Get(feature)
	if err != nil {
		return err
	}

	// Fast path: hot pollers re-deliver terminal signals long after the task
	// closed. Corrections must still reach the record, so only signals that
	// cannot re-price anything are short-circuited here.
	correctable := outcome == OutcomeSucceeded && feat.Pricing.Dynamic() && actual != nil
	if d.dedup != nil && !correctable {
		if seen, err := d.dedup.Seen(ctx, userID, feature, taskID); err == nil && seen {
			d.absorbDuplicate(feature, taskID)
			return nil
		}
	}

	err = d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		rec, err := s.FindTask(taskID)
		if err != nil {
			return err
		}

		if rec == nil {
			// Degraded path: a signal arrived for work we never recorded.
			// Reconstruct a pending record from what we know and proceed.
			if d.metrics != nil {
				d.metrics.UnknownTasksTotal.WithLabelValues(feature).Inc()
			}
			d.logger.Warn("completion signal for unknown task, reconstructing",
				zap.String("task_id", taskID),
				zap.String("feature", feature),
				zap.String("user_id", userID.String()),
			)
			rec = &model.TaskRecord{
				TaskID:      taskID,
				UserID:      userID,
				Feature:     feature,
				Status:      model.TaskStatusPending,
				IsFreeUsage: s.Ledger().UsageCount < feat.FreeQuota,
				CreatedAt:   d.now(),
			}
			if !rec.IsFreeUsage {
				// The gate's decision is lost; re-price from the catalog so
				// paid work cannot complete for free. Dynamic features still
				// re-price from the signal's metrics below.
				rec.EstimatedCost = feat.Pricing.Estimate(UsageParams{})
			}
			if err := s.CreateTask(rec); err != nil {
				return err
			}
		}

		if rec.Status.IsTerminal() {
			if rec.Status == model.TaskStatusSucceeded && correctable && !rec.IsFreeUsage {
				return d.correct(s, rec, feat.Pricing.Final(rec.EstimatedCost, actual))
			}
			d.absorbDuplicate(feature, taskID)
			return nil
		}

		if outcome == OutcomeFailed {
			return d.completeFailed(s, rec)
		}
		return d.completeSucceeded(s, rec, feat, actual)
	})
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	if d.dedup != nil {
		// Best effort; the locked record remains authoritative.
		if err := d.dedup.MarkTerminal(ctx, userID, feature, taskID); err != nil {
			d.logger.Debug("failed to mark terminal signal", zap.Error(err))
		}
	}
	return nil
}

func (d *Domain) completeFailed(s outbound.LedgerScope, rec *model.TaskRecord) error {
	now := d.now()
	rec.Status = model.TaskStatusFailed
	rec.CompletedAt = &now
	if err := s.SaveTask(rec); err != nil {
		return err
	}
	d.logger.Info("task failed, nothing charged",
		zap.String("task_id", rec.TaskID),
		zap.String("feature", rec.Feature),
	)
	return nil
}

func (d *Domain) completeSucceeded(s outbound.LedgerScope, rec *model.TaskRecord, feat *Feature, actual *CompletionMetrics) error {
	led := s.Ledger()
	acct := s.Account()
	now := d.now()

	actualCost := rec.EstimatedCost
	if feat.Pricing.Dynamic() {
		actualCost = feat.Pricing.Final(rec.EstimatedCost, actual)
	}

	if rec.IsFreeUsage {
		rec.ChargedCost = 0
	} else {
		// The work already exists; a shortfall caps the debit instead of
		// failing the completion.
		deduct := min64(actualCost, acct.Balance)
		if deduct < actualCost {
			d.logger.Warn("balance short at completion, capping debit",
				zap.String("task_id", rec.TaskID),
				zap.String("feature", rec.Feature),
				zap.Int64("actual_cost", actualCost),
				zap.Int64("deducted", deduct),
			)
		}
		acct.Balance -= deduct
		rec.ChargedCost = deduct
		led.TotalCreditsCharged += deduct
		if err := s.SaveAccount(); err != nil {
			return err
		}
	}

	rec.Status = model.TaskStatusSucceeded
	rec.CompletedAt = &now
	led.UsageCount++

	if err := s.SaveTask(rec); err != nil {
		return err
	}
	if err := s.SaveLedger(); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.ChargesTotal.WithLabelValues(rec.Feature, chargeKind(rec.IsFreeUsage)).Inc()
		if rec.ChargedCost > 0 {
			d.metrics.CreditsChargedTotal.WithLabelValues(rec.Feature).Add(float64(rec.ChargedCost))
		}
	}
	d.logger.Info("task charged",
		zap.String("task_id", rec.TaskID),
		zap.String("feature", rec.Feature),
		zap.Bool("free", rec.IsFreeUsage),
		zap.Int64("charged", rec.ChargedCost),
	)
	return nil
}

func (d *Domain) absorbDuplicate(feature, taskID string) {
	if d.metrics != nil {
		d.metrics.DuplicateSignalsTotal.WithLabelValues(feature).Inc()
	}
	d.logger.Debug("duplicate completion signal absorbed",
		zap.String("task_id", taskID),
		zap.String("feature", feature),
	)
}
