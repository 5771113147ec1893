package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
	"github.com/pixelmint/server/internal/port/outbound"
)

// mockRepository implements outbound.BillingRepositoryPort in memory. A single
// mutex stands in for the row locks: WithLedger holds it for the whole
// callback, so callers serialize exactly as they would on the real rows.
type mockRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*model.CreditAccount
	ledgers  map[string]*model.UsageLedger
	tasks    []*model.TaskRecord
	refunds  []*model.RefundEntry
	err      error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[uuid.UUID]*model.CreditAccount),
		ledgers:  make(map[string]*model.UsageLedger),
	}
}

func ledgerKey(userID uuid.UUID, feature string) string {
	return userID.String() + "|" + feature
}

func (m *mockRepository) setBalance(userID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[userID] = &model.CreditAccount{UserID: userID, Balance: balance}
}

func (m *mockRepository) balance(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[userID]; ok {
		return acct.Balance
	}
	return 0
}

func (m *mockRepository) ledger(userID uuid.UUID, feature string) *model.UsageLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledgers[ledgerKey(userID, feature)]
}

func (m *mockRepository) task(userID uuid.UUID, feature, taskID string) *model.TaskRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	led := m.ledgers[ledgerKey(userID, feature)]
	if led == nil {
		return nil
	}
	return m.findTaskLocked(led.ID, taskID)
}

func (m *mockRepository) findTaskLocked(ledgerID uuid.UUID, taskID string) *model.TaskRecord {
	for _, t := range m.tasks {
		if t.LedgerID == ledgerID && t.TaskID == taskID {
			t.Refund = nil
			for _, r := range m.refunds {
				if r.TaskRecordID == t.ID {
					t.Refund = r
					break
				}
			}
			return t
		}
	}
	return nil
}

func (m *mockRepository) WithLedger(_ context.Context, userID uuid.UUID, feature string, fn func(scope outbound.LedgerScope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	acct, ok := m.accounts[userID]
	if !ok {
		acct = &model.CreditAccount{UserID: userID}
		m.accounts[userID] = acct
	}
	led, ok := m.ledgers[ledgerKey(userID, feature)]
	if !ok {
		led = &model.UsageLedger{ID: uuid.New(), UserID: userID, Feature: feature}
		m.ledgers[ledgerKey(userID, feature)] = led
	}

	return fn(&mockScope{repo: m, account: acct, ledger: led})
}

func (m *mockRepository) GetAccount(_ context.Context, userID uuid.UUID) (*model.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if acct, ok := m.accounts[userID]; ok {
		return acct, nil
	}
	return &model.CreditAccount{UserID: userID}, nil
}

func (m *mockRepository) GetLedger(_ context.Context, userID uuid.UUID, feature string) (*model.UsageLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.ledgers[ledgerKey(userID, feature)], nil
}

func (m *mockRepository) ListTasks(_ context.Context, userID uuid.UUID, feature string, limit int) ([]*model.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*model.TaskRecord
	for _, t := range m.tasks {
		if t.UserID == userID && t.Feature == feature {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepository) ListExpiredPending(_ context.Context, cutoff time.Time, limit int) ([]*model.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var result []*model.TaskRecord
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusPending && t.CreatedAt.Before(cutoff) {
			result = append(result, t)
		}
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// mockScope implements outbound.LedgerScope over the locked repository.
type mockScope struct {
	repo    *mockRepository
	account *model.CreditAccount
	ledger  *model.UsageLedger
}

func (s *mockScope) Account() *model.CreditAccount { return s.account }
func (s *mockScope) Ledger() *model.UsageLedger    { return s.ledger }

func (s *mockScope) FindTask(taskID string) (*model.TaskRecord, error) {
	return s.repo.findTaskLocked(s.ledger.ID, taskID), nil
}

func (s *mockScope) CreateTask(task *model.TaskRecord) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.LedgerID = s.ledger.ID
	if s.repo.findTaskLocked(s.ledger.ID, task.TaskID) != nil {
		return fmt.Errorf("duplicate task %s", task.TaskID)
	}
	s.repo.tasks = append(s.repo.tasks, task)
	return nil
}

func (s *mockScope) SaveTask(*model.TaskRecord) error { return nil }
func (s *mockScope) SaveLedger() error                { return nil }
func (s *mockScope) SaveAccount() error               { return nil }

func (s *mockScope) CreateRefund(entry *model.RefundEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	for _, r := range s.repo.refunds {
		if r.TaskRecordID == entry.TaskRecordID {
			return fmt.Errorf("duplicate refund for task record %s", entry.TaskRecordID)
		}
	}
	s.repo.refunds = append(s.repo.refunds, entry)
	return nil
}

// mockDedup implements outbound.CompletionDedupPort in memory.
type mockDedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	seenCalls int
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool)}
}

func (m *mockDedup) Seen(_ context.Context, userID uuid.UUID, feature, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seenCalls++
	return m.seen[ledgerKey(userID, feature)+"|"+taskID], nil
}

func (m *mockDedup) MarkTerminal(_ context.Context, userID uuid.UUID, feature, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[ledgerKey(userID, feature)+"|"+taskID] = true
	return nil
}

func seedLedger(repo *mockRepository, userID uuid.UUID, feature string, usageCount, totalCharged int64) *model.UsageLedger {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	led := &model.UsageLedger{
		ID:                  uuid.New(),
		UserID:              userID,
		Feature:             feature,
		UsageCount:          usageCount,
		TotalCreditsCharged: totalCharged,
	}
	repo.ledgers[ledgerKey(userID, feature)] = led
	return led
}

var _ outbound.BillingRepositoryPort = (*mockRepository)(nil)
var _ outbound.CompletionDedupPort = (*mockDedup)(nil)

func newTestDomain(repo *mockRepository, dedup outbound.CompletionDedupPort, features ...*Feature) *Domain {
	if len(features) == 0 {
		features = DefaultFeatures()
	}
	catalog, err := NewCatalog(features...)
	if err != nil {
		panic(err)
	}
	return NewDomain(catalog, repo, dedup, nil, nil, nil)
}
