package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pixelmint/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("Succeeded paid task restores balance and quota", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)
		seedLedger(repo, userID, "video.generate", 1, 0)

		require.NoError(t, d.RecordCreated(ctx, userID, "video.generate", "task-1", &Decision{Kind: DecisionPaid, Cost: 30}))
		require.NoError(t, d.RecordCompletion(ctx, userID, "video.generate", "task-1", OutcomeSucceeded, &CompletionMetrics{DurationSeconds: 5}))
		require.Equal(t, int64(70), repo.balance(userID))

		reversed, err := d.Refund(ctx, userID, "video.generate", "task-1", "quality")
		require.NoError(t, err)
		assert.True(t, reversed)

		assert.Equal(t, int64(100), repo.balance(userID))
		led := repo.ledger(userID, "video.generate")
		assert.Equal(t, int64(1), led.UsageCount)
		assert.Equal(t, int64(0), led.TotalCreditsCharged)

		rec := repo.task(userID, "video.generate", "task-1")
		assert.Equal(t, model.TaskStatusRefunded, rec.Status)
		require.NotNil(t, rec.Refund)
		assert.Equal(t, int64(30), rec.Refund.Amount)
		assert.Equal(t, "quality", rec.Refund.Reason)
	})

	t.Run("Refund is applied at most once", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)
		seedLedger(repo, userID, "video.generate", 1, 0)

		require.NoError(t, d.RecordCreated(ctx, userID, "video.generate", "task-2", &Decision{Kind: DecisionPaid, Cost: 30}))
		require.NoError(t, d.RecordCompletion(ctx, userID, "video.generate", "task-2", OutcomeSucceeded, &CompletionMetrics{DurationSeconds: 5}))

		reversed, err := d.Refund(ctx, userID, "video.generate", "task-2", "quality")
		require.NoError(t, err)
		require.True(t, reversed)

		for i := 0; i < 3; i++ {
			reversed, err = d.Refund(ctx, userID, "video.generate", "task-2", "quality")
			require.NoError(t, err)
			assert.False(t, reversed)
		}

		assert.Equal(t, int64(100), repo.balance(userID))
		assert.Len(t, repo.refunds, 1)
	})

	t.Run("Succeeded free usage restores the slot", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)

		require.NoError(t, d.RecordCreated(ctx, userID, "video.generate", "task-3", &Decision{Kind: DecisionFree}))
		require.NoError(t, d.RecordCompletion(ctx, userID, "video.generate", "task-3", OutcomeSucceeded, nil))
		require.Equal(t, int64(1), repo.ledger(userID, "video.generate").UsageCount)

		reversed, err := d.Refund(ctx, userID, "video.generate", "task-3", "quality")
		require.NoError(t, err)
		assert.True(t, reversed)

		assert.Equal(t, int64(100), repo.balance(userID))
		assert.Equal(t, int64(0), repo.ledger(userID, "video.generate").UsageCount)

		rec := repo.task(userID, "video.generate", "task-3")
		require.NotNil(t, rec.Refund)
		assert.Equal(t, int64(0), rec.Refund.Amount)
	})

	t.Run("Pending task is cancelled, not reversed", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		seedLedger(repo, userID, "video.generate", 1, 0)

		require.NoError(t, d.RecordCreated(ctx, userID, "video.generate", "task-4", &Decision{Kind: DecisionPaid, Cost: 30}))

		reversed, err := d.Refund(ctx, userID, "video.generate", "task-4", "user_cancel")
		require.NoError(t, err)
		assert.False(t, reversed)

		rec := repo.task(userID, "video.generate", "task-4")
		assert.Equal(t, model.TaskStatusFailed, rec.Status)
		require.NotNil(t, rec.CompletedAt)

		// A completion signal arriving after the cancellation is absorbed.
		require.NoError(t, d.RecordCompletion(ctx, userID, "video.generate", "task-4", OutcomeSucceeded, nil))
		assert.Equal(t, int64(0), repo.balance(userID))
	})

	t.Run("Failed task records a zero-amount entry", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		seedLedger(repo, userID, "video.generate", 1, 0)

		require.NoError(t, d.RecordCreated(ctx, userID, "video.generate", "task-5", &Decision{Kind: DecisionPaid, Cost: 30}))
		require.NoError(t, d.RecordCompletion(ctx, userID, "video.generate", "task-5", OutcomeFailed, nil))

		reversed, err := d.Refund(ctx, userID, "video.generate", "task-5", "quality")
		require.NoError(t, err)
		assert.False(t, reversed)

		require.Len(t, repo.refunds, 1)
		assert.Equal(t, int64(0), repo.refunds[0].Amount)
	})

	t.Run("Unknown task is ignored", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		reversed, err := d.Refund(ctx, uuid.New(), "video.generate", "ghost", "quality")
		require.NoError(t, err)
		assert.False(t, reversed)
	})

	t.Run("Unknown feature", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		_, err := d.Refund(ctx, uuid.New(), "audio.remix", "task-6", "quality")
		assert.ErrorIs(t, err, ErrUnknownFeature)
	})
}
