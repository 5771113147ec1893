package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
)

// LedgerScope is the mutation surface handed to a WithLedger callback.
// The account and ledger rows are loaded and exclusively locked for the
// lifetime of the callback, so check-then-act sequences inside it are atomic
// with respect to every other caller touching the same (user, feature).
type LedgerScope interface {
	// Account returns the locked credit account, created lazily with a zero
	// balance on first access.
	Account() *model.CreditAccount

	// Ledger returns the locked usage ledger, created lazily on first access.
	Ledger() *model.UsageLedger

	// FindTask returns the task record for the idempotency key, with its
	// refund entry preloaded, or nil when no record exists.
	FindTask(taskID string) (*model.TaskRecord, error)

	CreateTask(task *model.TaskRecord) error
	SaveTask(task *model.TaskRecord) error
	SaveLedger() error
	SaveAccount() error
	CreateRefund(entry *model.RefundEntry) error
}

// BillingRepositoryPort is the durable store for accounts, ledgers, task
// records and refunds. WithLedger runs fn inside one atomic unit; either every
// write in the scope lands or none does, so a debit can never outlive a failed
// ledger write.
type BillingRepositoryPort interface {
	WithLedger(ctx context.Context, userID uuid.UUID, feature string, fn func(scope LedgerScope) error) error

	// GetAccount returns the account, or a zero-balance account when the user
	// has none yet.
	GetAccount(ctx context.Context, userID uuid.UUID) (*model.CreditAccount, error)

	// GetLedger returns the ledger, or nil when the pair has never been used.
	GetLedger(ctx context.Context, userID uuid.UUID, feature string) (*model.UsageLedger, error)

	// ListTasks returns the most recent task records for a ledger.
	ListTasks(ctx context.Context, userID uuid.UUID, feature string, limit int) ([]*model.TaskRecord, error)

	// ListExpiredPending returns pending tasks created before the cutoff,
	// across all ledgers, for the expiry sweep.
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*model.TaskRecord, error)
}

// CompletionDedupPort short-circuits repeated completion signals for tasks
// already driven to a terminal state. It is a fast-path cache only; the locked
// task record remains the source of truth.
type CompletionDedupPort interface {
	Seen(ctx context.Context, userID uuid.UUID, feature, taskID string) (bool, error)
	MarkTerminal(ctx context.Context, userID uuid.UUID, feature, taskID string) error
}
