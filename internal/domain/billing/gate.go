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

// DecisionKind classifies the outcome of an access check.
type DecisionKind string

const (
	DecisionFree     DecisionKind = "free"
	DecisionPaid     DecisionKind = "paid"
	DecisionRejected DecisionKind = "rejected"
)

// Decision is the pre-flight result the caller stores alongside the task
// identity. For deferred-cost features Cost is an estimate; nothing has been
// charged yet.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Cost   int64        `json:"cost,omitempty"`
	Reason string       `json:"reason,omitempty"`

	// Set on rejection.
	Required  int64 `json:"required,omitempty"`
	Available int64 `json:"available,omitempty"`
}

// Free reports whether the invocation consumes a free slot.
func (d *Decision) Free() bool { return d.Kind == DecisionFree }

// Rejected reports whether the invocation was refused.
func (d *Decision) Rejected() bool { return d.Kind == DecisionRejected }

// CheckAccess decides whether an invocation is free, paid and affordable, or
// rejected. It never mutates the balance or the ledger; a rejected request
// leaves no trace beyond a log line.
func (d *Domain) CheckAccess(ctx context.Context, userID uuid.UUID, feature string, params UsageParams) (*Decision, error) {
	feature = strings.TrimSpace(feature)
	if userID == uuid.Nil || feature == "" {
		return nil, ErrInvalidRequest
	}

	feat, err := d.catalog.Get(feature)
	if err != nil {
		return nil, err
	}

	var decision *Decision
	err = d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		if s.Ledger().UsageCount < feat.FreeQuota {
			decision = &Decision{Kind: DecisionFree}
			return nil
		}

		cost := feat.Pricing.Estimate(params)
		balance := s.Account().Balance
		if balance < cost {
			decision = &Decision{
				Kind:      DecisionRejected,
				Reason:    "insufficient_credits",
				Required:  cost,
				Available: balance,
			}
			return nil
		}

		decision = &Decision{Kind: DecisionPaid, Cost: cost}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check access: %w", err)
	}

	if decision.Rejected() {
		if d.metrics != nil {
			d.metrics.RejectionsTotal.WithLabelValues(feature).Inc()
		}
		d.logger.Info("access rejected",
			zap.String("user_id", userID.String()),
			zap.String("feature", feature),
			zap.Int64("required", decision.Required),
			zap.Int64("available", decision.Available),
		)
	}

	return decision, nil
}

// ChargeResult is the outcome of an immediate debit.
type ChargeResult struct {
	TaskID      string `json:"task_id"`
	IsFreeUsage bool   `json:"is_free_usage"`
	Charged     int64  `json:"charged"`
	Balance     int64  `json:"balance"`
}

// Charge performs the gate's fast path for synchronous fixed-cost features:
// decide and debit in one atomic step, guarded by the caller-supplied
// idempotency key so a retried request never double-debits. The key doubles as
// the task identity, which makes the resulting record refundable through the
// normal coordinator.
func (d *Domain) Charge(ctx context.Context, userID uuid.UUID, feature, idempotencyKey string, params UsageParams) (*ChargeResult, error) {
	feature = strings.TrimSpace(feature)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if userID == uuid.Nil || feature == "" || idempotencyKey == "" {
		return nil, ErrInvalidRequest
	}

	feat, err := d.catalog.Get(feature)
	if err != nil {
		return nil, err
	}
	if !feat.Synchronous {
		return nil, fmt.Errorf("%w: feature %s bills on completion", ErrInvalidRequest, feature)
	}

	var result *ChargeResult
	var replayed bool
	err = d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		if prior, err := s.FindTask(idempotencyKey); err != nil {
			return err
		} else if prior != nil {
			// Retried request; report what the first attempt did.
			replayed = true
			result = &ChargeResult{
				TaskID:      prior.TaskID,
				IsFreeUsage: prior.IsFreeUsage,
				Charged:     prior.ChargedCost,
				Balance:     s.Account().Balance,
			}
			d.logger.Debug("duplicate charge request absorbed",
				zap.String("task_id", idempotencyKey),
				zap.String("feature", feature),
			)
			return nil
		}

		led := s.Ledger()
		acct := s.Account()
		now := d.now()

		rec := &model.TaskRecord{
			TaskID:    idempotencyKey,
			UserID:    userID,
			Feature:   feature,
			Status:    model.TaskStatusSucceeded,
			CreatedAt: now,
		}
		rec.CompletedAt = &now

		if led.UsageCount < feat.FreeQuota {
			rec.IsFreeUsage = true
		} else {
			cost := feat.Pricing.Estimate(params)
			if acct.Balance < cost {
				return &InsufficientCreditsError{Required: cost, Available: acct.Balance}
			}
			acct.Balance -= cost
			rec.EstimatedCost = cost
			rec.ChargedCost = cost
			led.TotalCreditsCharged += cost
			if err := s.SaveAccount(); err != nil {
				return err
			}
		}

		led.UsageCount++
		if err := s.CreateTask(rec); err != nil {
			return err
		}
		if err := s.SaveLedger(); err != nil {
			return err
		}

		result = &ChargeResult{
			TaskID:      rec.TaskID,
			IsFreeUsage: rec.IsFreeUsage,
			Charged:     rec.ChargedCost,
			Balance:     acct.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.metrics != nil && !replayed {
		d.metrics.ChargesTotal.WithLabelValues(feature, chargeKind(result.IsFreeUsage)).Inc()
		if result.Charged > 0 {
			d.metrics.CreditsChargedTotal.WithLabelValues(feature).Add(float64(result.Charged))
		}
	}

	return result, nil
}

func chargeKind(free bool) string {
	if free {
		return "free"
	}
	return "paid"
}
