package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/outbound"
	"go.uber.org/zap"
)

// ExpireTask forcibly closes a pending task that never received a terminal
// signal, restoring nothing (nothing was ever charged) but locking the record
// so a late completion signal cannot charge after the fact.
func (d *Domain) ExpireTask(ctx context.Context, userID uuid.UUID, feature, taskID string) error {
	return d.repo.WithLedger(ctx, userID, feature, func(s outbound.LedgerScope) error {
		rec, err := s.FindTask(taskID)
		if err != nil {
			return err
		}
		if rec == nil || rec.Status.IsTerminal() {
			return nil
		}

		now := d.now()
		rec.Status = model.TaskStatusExpired
		rec.CompletedAt = &now
		if err := s.SaveTask(rec); err != nil {
			return err
		}
		// Audit entry with amount 0; the task was never charged, and the
		// entry also pins the refund idempotency guard.
		if err := s.CreateRefund(&model.RefundEntry{
			TaskRecordID: rec.ID,
			TaskID:       rec.TaskID,
			Amount:       0,
			Reason:       "timeout",
			RefundedAt:   now,
		}); err != nil {
			return err
		}

		if d.metrics != nil {
			d.metrics.TasksExpiredTotal.WithLabelValues(feature).Inc()
		}
		d.logger.Info("pending task expired",
			zap.String("task_id", taskID),
			zap.String("feature", feature),
			zap.String("user_id", userID.String()),
		)
		return nil
	})
}

// SweepExpired expires one batch of overdue pending tasks and returns how
// many were closed.
func (d *Domain) SweepExpired(ctx context.Context) (int, error) {
	cutoff := d.now().Add(-d.config.TaskExpiryWindow)
	tasks, err := d.repo.ListExpiredPending(ctx, cutoff, d.config.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, t := range tasks {
		if err := d.ExpireTask(ctx, t.UserID, t.Feature, t.TaskID); err != nil {
			d.logger.Warn("failed to expire task",
				zap.String("task_id", t.TaskID),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

// Sweeper periodically expires overdue pending tasks.
type Sweeper struct {
	domain   *Domain
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over the domain's expiry configuration.
func NewSweeper(domain *Domain, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		domain:   domain,
		interval: domain.config.SweepInterval,
		logger:   logger.Named("billing-sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("starting expiry sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("window", s.domain.config.TaskExpiryWindow),
	)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the sweeper and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("expiry sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			n, err := s.domain.SweepExpired(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired pending tasks", zap.Int("count", n))
			}
		}
	}
}
