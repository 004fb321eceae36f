package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

func TestAccountService(t *testing.T) {
	store := newTestStore(t, 3)
	publisher := &recordingPublisher{}
	svc := NewAccountService(store, publisher)
	ctx := context.Background()

	account, err := svc.GetOrCreate(ctx, "kinde_account", "acct@example.com")
	require.NoError(t, err)

	t.Run("summary carries limits", func(t *testing.T) {
		summary, err := svc.Summary(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.Credits)
		assert.Equal(t, model.TierFree, summary.Tier)
		assert.Equal(t, 1, summary.Limits.MaxHistoryVisible)
	})

	t.Run("adjustment is audited as adjusted credit", func(t *testing.T) {
		ref := "evt_orphan"
		result, err := svc.Adjust(ctx, AdjustParams{AccountID: account.ID, Amount: 100, Reference: &ref, Actor: "admin"})
		require.NoError(t, err)
		assert.Equal(t, model.EntryKindAdjustedCredit, result.Entry.Kind)
		assert.Equal(t, int64(103), result.NewBalance())
		assert.Equal(t, 1, publisher.count("balance_updated"))
	})

	t.Run("negative adjustment cannot overdraw", func(t *testing.T) {
		_, err := svc.Adjust(ctx, AdjustParams{AccountID: account.ID, Pool: model.PoolVideo, Amount: -1})
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientFunds))
	})

	t.Run("transactions newest first", func(t *testing.T) {
		entries, total, err := svc.Transactions(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(100), entries[0].Amount)
	})

	t.Run("reconcile and drift", func(t *testing.T) {
		rec, err := svc.Reconcile(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, rec.Balanced())

		drift, err := svc.Drift(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, drift)
	})

	t.Run("summary of a missing account", func(t *testing.T) {
		_, err := svc.Summary(ctx, &model.Account{ID: "missing"})
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeAccountNotFound))
	})
}
