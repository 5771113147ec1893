package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("Free while quota remains", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()

		decision, err := d.CheckAccess(ctx, userID, "image.generate", UsageParams{})
		require.NoError(t, err)
		assert.Equal(t, DecisionFree, decision.Kind)
		assert.True(t, decision.Free())
	})

	t.Run("Paid once quota exhausted", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)
		seedLedger(repo, userID, "image.generate", 3, 0)

		decision, err := d.CheckAccess(ctx, userID, "image.generate", UsageParams{})
		require.NoError(t, err)
		assert.Equal(t, DecisionPaid, decision.Kind)
		assert.Equal(t, int64(10), decision.Cost)
	})

	t.Run("Rejected reports amounts and leaves no trace", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 4)

		decision, err := d.CheckAccess(ctx, userID, "image.upscale", UsageParams{})
		require.NoError(t, err)
		assert.True(t, decision.Rejected())
		assert.Equal(t, int64(20), decision.Required)
		assert.Equal(t, int64(4), decision.Available)

		// No mutation: balance and ledger untouched.
		assert.Equal(t, int64(4), repo.balance(userID))
		led := repo.ledger(userID, "image.upscale")
		require.NotNil(t, led)
		assert.Equal(t, int64(0), led.UsageCount)
		assert.Empty(t, repo.tasks)
	})

	t.Run("Duration priced estimate uses requested seconds", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 1000)
		seedLedger(repo, userID, "video.generate", 1, 0)

		decision, err := d.CheckAccess(ctx, userID, "video.generate", UsageParams{DurationSeconds: 10})
		require.NoError(t, err)
		assert.Equal(t, DecisionPaid, decision.Kind)
		assert.Equal(t, int64(60), decision.Cost)
	})

	t.Run("Unknown feature", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		_, err := d.CheckAccess(ctx, uuid.New(), "audio.remix", UsageParams{})
		assert.ErrorIs(t, err, ErrUnknownFeature)
	})

	t.Run("Missing arguments", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		_, err := d.CheckAccess(ctx, uuid.Nil, "image.generate", UsageParams{})
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = d.CheckAccess(ctx, uuid.New(), "  ", UsageParams{})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("Free slot consumed first", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)

		result, err := d.Charge(ctx, userID, "image.generate", "req-1", UsageParams{})
		require.NoError(t, err)
		assert.True(t, result.IsFreeUsage)
		assert.Equal(t, int64(0), result.Charged)
		assert.Equal(t, int64(100), result.Balance)
		assert.Equal(t, int64(1), repo.ledger(userID, "image.generate").UsageCount)
	})

	t.Run("Debits once quota exhausted", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)
		seedLedger(repo, userID, "image.generate", 3, 0)

		result, err := d.Charge(ctx, userID, "image.generate", "req-2", UsageParams{})
		require.NoError(t, err)
		assert.False(t, result.IsFreeUsage)
		assert.Equal(t, int64(10), result.Charged)
		assert.Equal(t, int64(90), result.Balance)
		assert.Equal(t, int64(90), repo.balance(userID))
		assert.Equal(t, int64(4), repo.ledger(userID, "image.generate").UsageCount)
		assert.Equal(t, int64(10), repo.ledger(userID, "image.generate").TotalCreditsCharged)
	})

	t.Run("Retried key replays without double debit", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 100)
		seedLedger(repo, userID, "image.upscale", 0, 0)

		first, err := d.Charge(ctx, userID, "image.upscale", "req-3", UsageParams{})
		require.NoError(t, err)
		require.Equal(t, int64(20), first.Charged)

		second, err := d.Charge(ctx, userID, "image.upscale", "req-3", UsageParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(20), second.Charged)
		assert.Equal(t, int64(80), second.Balance)
		assert.Equal(t, int64(80), repo.balance(userID))
		assert.Equal(t, int64(1), repo.ledger(userID, "image.upscale").UsageCount)
	})

	t.Run("Insufficient balance", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)
		userID := uuid.New()
		repo.setBalance(userID, 5)

		_, err := d.Charge(ctx, userID, "image.upscale", "req-4", UsageParams{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientCredits)

		var insufficient *InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, int64(20), insufficient.Required)
		assert.Equal(t, int64(5), insufficient.Available)

		// Nothing was written.
		assert.Equal(t, int64(5), repo.balance(userID))
		assert.Empty(t, repo.tasks)
	})

	t.Run("Rejects deferred features", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		_, err := d.Charge(ctx, uuid.New(), "video.generate", "req-5", UsageParams{})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("Requires idempotency key", func(t *testing.T) {
		repo := newMockRepository()
		d := newTestDomain(repo, nil)

		_, err := d.Charge(ctx, uuid.New(), "image.generate", "  ", UsageParams{})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}
