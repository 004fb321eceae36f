package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/credit-ledger-go/internal/database/databasetest"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/repository"
)

func newTestStore(t *testing.T, seed int64) *Store {
	t.Helper()
	return NewStore(databasetest.New(t), seed)
}

func debit(accountID string, amount int64) ChangeParams {
	return ChangeParams{
		AccountID:   accountID,
		Pool:        model.PoolGeneral,
		Amount:      -amount,
		Kind:        model.EntryKindUsage,
		Description: "Analyzed video content",
	}
}

func TestGetOrCreateAccount(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	t.Run("creates on first access", func(t *testing.T) {
		account, err := store.GetOrCreateAccount(ctx, "kinde_1", "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(3), account.Balance)
		assert.Equal(t, model.TierFree, account.Tier)
	})

	t.Run("returns existing account", func(t *testing.T) {
		first, err := store.GetOrCreateAccount(ctx, "kinde_2", "b@example.com")
		require.NoError(t, err)
		second, err := store.GetOrCreateAccount(ctx, "kinde_2", "other@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "b@example.com", second.Email)
	})

	t.Run("concurrent callers share one account", func(t *testing.T) {
		const callers = 20
		ids := make([]string, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				account, err := store.GetOrCreateAccount(ctx, "kinde_race", "race@example.com")
				if assert.NoError(t, err) {
					ids[i] = account.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("requires external id", func(t *testing.T) {
		_, err := store.GetOrCreateAccount(ctx, " ", "x@example.com")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeMissingRequired))
	})
}

func TestApplyLedgerChange_Scenario(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()
	account, err := store.GetOrCreateAccount(ctx, "kinde_scenario", "s@example.com")
	require.NoError(t, err)

	result, err := store.ApplyLedgerChange(ctx, debit(account.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.NewBalance())
	assert.Equal(t, int64(-1), result.Entry.Amount)
	assert.Equal(t, model.EntryKindUsage, result.Entry.Kind)

	_, err = store.ApplyLedgerChange(ctx, debit(account.ID, 5))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientFunds))

	current, err := store.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Balance)

	entries, err := store.Entries(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-1), entries[0].Amount)
}

func TestApplyLedgerChange_Validation(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()
	account, err := store.GetOrCreateAccount(ctx, "kinde_v", "v@example.com")
	require.NoError(t, err)

	t.Run("zero amount", func(t *testing.T) {
		_, err := store.ApplyLedgerChange(ctx, debit(account.ID, 0))
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("unknown pool", func(t *testing.T) {
		p := debit(account.ID, 1)
		p.Pool = "bonus"
		_, err := store.ApplyLedgerChange(ctx, p)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := store.ApplyLedgerChange(ctx, debit("missing", 1))
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeAccountNotFound))
	})

	t.Run("video pool has its own balance", func(t *testing.T) {
		p := debit(account.ID, 1)
		p.Pool = model.PoolVideo
		_, err := store.ApplyLedgerChange(ctx, p)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientFunds))

		current, err := store.Account(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), current.Balance)
	})

	t.Run("cancelled context changes nothing", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.ApplyLedgerChange(cancelled, debit(account.ID, 1))
		assert.ErrorIs(t, err, context.Canceled)

		count, err := store.CountEntries(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestApplyLedgerChange_ConcurrentDebits(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()
	account, err := store.GetOrCreateAccount(ctx, "kinde_concurrent", "c@example.com")
	require.NoError(t, err)

	const attempts = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyLedgerChange(ctx, debit(account.ID, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.Is(err, apperrors.ErrCodeInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, attempts-10, rejected)

	current, err := store.Account(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.Balance)

	count, err := store.CountEntries(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, succeeded, count)
}

type failingEntries struct {
	repository.LedgerEntryRepository
}

func (f failingEntries) WithTx(tx *sqlx.Tx) repository.LedgerEntryRepository {
	return f
}

func (f failingEntries) Create(ctx context.Context, params model.CreateLedgerEntryParams) (*model.LedgerEntry, error) {
	return nil, errors.New("disk full")
}

func TestApplyLedgerChange_Atomicity(t *testing.T) {
	ctx := context.Background()

	t.Run("abort after balance update rolls back", func(t *testing.T) {
		store := newTestStore(t, 3)
		account, err := store.GetOrCreateAccount(ctx, "kinde_abort", "a@example.com")
		require.NoError(t, err)

		abort := errors.New("simulated crash")
		err = store.WithTx(ctx, func(tx *Tx) error {
			result, err := tx.ApplyChange(ctx, debit(account.ID, 2))
			require.NoError(t, err)
			assert.Equal(t, int64(1), result.NewBalance())
			return abort
		})
		assert.ErrorIs(t, err, abort)

		current, err := store.Account(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), current.Balance)

		count, err := store.CountEntries(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("failed entry append leaves balance unchanged", func(t *testing.T) {
		store := newTestStore(t, 3)
		account, err := store.GetOrCreateAccount(ctx, "kinde_fail", "f@example.com")
		require.NoError(t, err)

		healthy := store.entries
		store.entries = failingEntries{LedgerEntryRepository: healthy}
		_, err = store.ApplyLedgerChange(ctx, debit(account.ID, 1))
		require.Error(t, err)
		store.entries = healthy

		current, err := store.Account(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), current.Balance)
	})
}

func TestReconcile_RoundTrip(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()
	account, err := store.GetOrCreateAccount(ctx, "kinde_round", "r@example.com")
	require.NoError(t, err)

	changes := []ChangeParams{
		{AccountID: account.ID, Pool: model.PoolGeneral, Amount: 100, Kind: model.EntryKindPurchase, Description: "Purchased Diamond plan"},
		{AccountID: account.ID, Pool: model.PoolVideo, Amount: 3, Kind: model.EntryKindPurchase, Description: "Purchased Diamond plan (video credits)"},
		debit(account.ID, 1),
		debit(account.ID, 10),
		{AccountID: account.ID, Pool: model.PoolVideo, Amount: -1, Kind: model.EntryKindUsage, Description: "Video request: Cats"},
		{AccountID: account.ID, Pool: model.PoolGeneral, Amount: 10, Kind: model.EntryKindAdjustedCredit, Description: "Refund"},
		debit(account.ID, 500),
	}
	for i, change := range changes {
		_, err := store.ApplyLedgerChange(ctx, change)
		if i == len(changes)-1 {
			require.Error(t, err, "overdraw must fail")
			continue
		}
		require.NoError(t, err, fmt.Sprintf("change %d", i))
	}

	rec, err := store.Reconcile(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, rec.Balance-rec.SeedBalance, rec.GeneralSum)
	assert.Equal(t, int64(102), rec.Balance)
	assert.Equal(t, int64(2), rec.VideoBalance)

	drift, err := store.FindDrift(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, drift)

	_, err = store.Reconcile(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAccountNotFound))
}

func TestTx_ResolveAccount(t *testing.T) {
	store := newTestStore(t, 0)
	ctx := context.Background()
	account, err := store.GetOrCreateAccount(ctx, "kinde_resolve", "x@example.com")
	require.NoError(t, err)

	resolve := func(candidates ...string) *model.Account {
		var found *model.Account
		require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
			var err error
			found, err = tx.ResolveAccount(ctx, candidates...)
			return err
		}))
		return found
	}

	t.Run("by internal id", func(t *testing.T) {
		found := resolve(account.ID)
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("by external id", func(t *testing.T) {
		found := resolve("kinde_resolve")
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("skips empty and unknown candidates", func(t *testing.T) {
		found := resolve("", "nobody", "kinde_resolve")
		require.NotNil(t, found)
		assert.Equal(t, account.ID, found.ID)
	})

	t.Run("nil when nothing matches", func(t *testing.T) {
		assert.Nil(t, resolve("nobody"))
	})

	t.Run("set tier", func(t *testing.T) {
		require.NoError(t, store.WithTx(ctx, func(tx *Tx) error {
			updated, err := tx.SetTier(ctx, account.ID, model.TierSolitaire)
			if err != nil {
				return err
			}
			assert.Equal(t, model.TierSolitaire, updated.Tier)
			return nil
		}))
	})
}
