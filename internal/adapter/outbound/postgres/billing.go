package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// billingRepository implements outbound.BillingRepositoryPort on postgres.
type billingRepository struct {
	db *gorm.DB
}

// NewBillingRepository creates a new billing repository adapter.
func NewBillingRepository(db *gorm.DB) outbound.BillingRepositoryPort {
	return &billingRepository{db: db}
}

// WithLedger runs fn in one transaction holding FOR UPDATE locks on the
// account and ledger rows. Concurrent callers for the same (user, feature)
// serialize on the ledger row; callers for the same user but different
// features serialize on the account row. All writes inside fn commit or roll
// back together, so a debit can never land without its ledger write.
func (r *billingRepository) WithLedger(ctx context.Context, userID uuid.UUID, feature string, fn func(scope outbound.LedgerScope) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		led, err := lockLedger(tx, userID, feature)
		if err != nil {
			return err
		}
		return fn(&ledgerScope{tx: tx, account: acct, ledger: led})
	})
}

func lockAccount(tx *gorm.DB, userID uuid.UUID) (*model.CreditAccount, error) {
	// Insert-if-missing outside the lock, then lock. The ON CONFLICT guard
	// makes the create race-safe across transactions.
	seed := &model.CreditAccount{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, err
	}
	var acct model.CreditAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&acct).Error
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func lockLedger(tx *gorm.DB, userID uuid.UUID, feature string) (*model.UsageLedger, error) {
	seed := &model.UsageLedger{ID: uuid.New(), UserID: userID, Feature: feature}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, err
	}
	var led model.UsageLedger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND feature = ?", userID, feature).
		First(&led).Error
	if err != nil {
		return nil, err
	}
	return &led, nil
}

// ledgerScope implements outbound.LedgerScope over the open transaction.
type ledgerScope struct {
	tx      *gorm.DB
	account *model.CreditAccount
	ledger  *model.UsageLedger
}

func (s *ledgerScope) Account() *model.CreditAccount { return s.account }
func (s *ledgerScope) Ledger() *model.UsageLedger    { return s.ledger }

func (s *ledgerScope) FindTask(taskID string) (*model.TaskRecord, error) {
	var rec model.TaskRecord
	err := s.tx.Preload("Refund").
		Where("ledger_id = ? AND task_id = ?", s.ledger.ID, taskID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *ledgerScope) CreateTask(task *model.TaskRecord) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.LedgerID = s.ledger.ID
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.CreatedAt
	return s.tx.Create(task).Error
}

func (s *ledgerScope) SaveTask(task *model.TaskRecord) error {
	task.UpdatedAt = time.Now().UTC()
	return s.tx.Omit("Refund").Save(task).Error
}

func (s *ledgerScope) SaveLedger() error {
	return s.tx.Save(s.ledger).Error
}

func (s *ledgerScope) SaveAccount() error {
	return s.tx.Save(s.account).Error
}

func (s *ledgerScope) CreateRefund(entry *model.RefundEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.tx.Create(entry).Error
}

func (r *billingRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*model.CreditAccount, error) {
	var acct model.CreditAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.CreditAccount{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *billingRepository) GetLedger(ctx context.Context, userID uuid.UUID, feature string) (*model.UsageLedger, error) {
	var led model.UsageLedger
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND feature = ?", userID, feature).
		First(&led).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &led, nil
}

func (r *billingRepository) ListTasks(ctx context.Context, userID uuid.UUID, feature string, limit int) ([]*model.TaskRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var tasks []*model.TaskRecord
	err := r.db.WithContext(ctx).
		Preload("Refund").
		Where("user_id = ? AND feature = ?", userID, feature).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *billingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*model.TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var tasks []*model.TaskRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TaskStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Compile-time check
var _ outbound.BillingRepositoryPort = (*billingRepository)(nil)
