package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a billed task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRefunded  TaskStatus = "refunded"
	TaskStatusExpired   TaskStatus = "expired"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusSucceeded, TaskStatusFailed, TaskStatusRefunded, TaskStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further charge or refund mutation is allowed,
// other than the single Succeeded -> Refunded step.
func (s TaskStatus) IsTerminal() bool {
	return s != TaskStatusPending
}

// CanTransitionTo checks the status state machine:
// Pending -> {Succeeded, Failed, Expired}, Succeeded -> Refunded.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusSucceeded || next == TaskStatusFailed || next == TaskStatusExpired
	case TaskStatusSucceeded:
		return next == TaskStatusRefunded
	}
	return false
}

// CreditAccount holds a user's credit balance. The balance is mutated only
// through the ledger repository's locked scope and never goes negative.
type CreditAccount struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for CreditAccount.
func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// UsageLedger is the durable per-(user, feature) aggregate. It is created
// lazily on first access and never deleted.
type UsageLedger struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_user_feature" json:"user_id"`
	Feature             string    `gorm:"size:128;not null;uniqueIndex:idx_ledger_user_feature" json:"feature"`
	UsageCount          int64     `gorm:"not null;default:0" json:"usage_count"`
	TotalCreditsCharged int64     `gorm:"not null;default:0" json:"total_credits_charged"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName returns the table name for UsageLedger.
func (UsageLedger) TableName() string {
	return "usage_ledgers"
}

// TaskRecord is one unit of billed asynchronous work. TaskID is the
// idempotency key: unique within a ledger, and a record is never physically
// deleted once written.
type TaskRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LedgerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_task_ledger_task" json:"ledger_id"`
	TaskID   string    `gorm:"size:128;not null;uniqueIndex:idx_task_ledger_task" json:"task_id"`

	// Denormalized for the expiry sweep, which scans across ledgers.
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Feature string    `gorm:"size:128;not null" json:"feature"`

	Status        TaskStatus   `gorm:"size:16;not null;index" json:"status"`
	IsFreeUsage   bool         `gorm:"not null;default:false" json:"is_free_usage"`
	EstimatedCost int64        `gorm:"not null;default:0" json:"estimated_cost"`
	ChargedCost   int64        `gorm:"not null;default:0" json:"charged_cost"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Refund        *RefundEntry `gorm:"foreignKey:TaskRecordID" json:"refund,omitempty"`
}

// TableName returns the table name for TaskRecord.
func (TaskRecord) TableName() string {
	return "task_records"
}

// Refunded reports whether a refund entry exists for this task.
func (t *TaskRecord) Refunded() bool {
	return t.Refund != nil
}

// RefundEntry records a single reversal for a task. The unique index on
// TaskRecordID enforces at most one refund per task.
type RefundEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskRecordID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"task_record_id"`
	TaskID       string    `gorm:"size:128;not null" json:"task_id"`
	Amount       int64     `gorm:"not null;default:0" json:"amount"`
	Reason       string    `gorm:"size:255" json:"reason"`
	RefundedAt   time.Time `json:"refunded_at"`
}

// TableName returns the table name for RefundEntry.
func (RefundEntry) TableName() string {
	return "refund_entries"
}
