package billing

import (
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/outbound"
	"go.uber.org/zap"
)

// correct adjusts an already-applied charge once the true cost is known. Only
// reachable while the record is Succeeded. Re-applying the same correction
// finds chargedCost already matching and skips, which makes the path
// idempotent per distinct cost.
func (d *Domain) correct(s outbound.LedgerScope, rec *model.TaskRecord, newCost int64) error {
	delta := newCost - rec.ChargedCost
	if delta == 0 {
		return nil
	}

	led := s.Ledger()
	acct := s.Account()

	var applied int64
	direction := "debit"
	if delta > 0 {
		// Same capping rule as the original charge: the work exists, so a
		// shortfall limits the extra debit rather than failing.
		applied = min64(delta, acct.Balance)
		acct.Balance -= applied
		rec.ChargedCost += applied
		led.TotalCreditsCharged += applied
	} else {
		applied = -delta
		direction = "credit"
		acct.Balance += applied
		rec.ChargedCost -= applied
		led.TotalCreditsCharged -= applied
	}

	if err := s.SaveAccount(); err != nil {
		return err
	}
	if err := s.SaveTask(rec); err != nil {
		return err
	}
	if err := s.SaveLedger(); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.CorrectionsTotal.WithLabelValues(rec.Feature, direction).Inc()
	}
	d.logger.Info("charge corrected",
		zap.String("task_id", rec.TaskID),
		zap.String("feature", rec.Feature),
		zap.String("direction", direction),
		zap.Int64("amount", applied),
		zap.Int64("charged_cost", rec.ChargedCost),
	)
	return nil
}
