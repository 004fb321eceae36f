package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/credit-ledger-go/internal/analyzer"
	"github.com/openclaw/credit-ledger-go/internal/billing"
	"github.com/openclaw/credit-ledger-go/internal/database/databasetest"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

func newTestStore(t *testing.T, seed int64) *ledger.Store {
	t.Helper()
	return ledger.NewStore(databasetest.New(t), seed)
}

func newAccount(t *testing.T, store *ledger.Store, externalID string) *model.Account {
	t.Helper()
	account, err := store.GetOrCreateAccount(context.Background(), externalID, externalID+"@example.com")
	require.NoError(t, err)
	return account
}

func fund(t *testing.T, store *ledger.Store, accountID string, pool model.Pool, amount int64) {
	t.Helper()
	_, err := store.ApplyLedgerChange(context.Background(), ledger.ChangeParams{
		AccountID:   accountID,
		Pool:        pool,
		Amount:      amount,
		Kind:        model.EntryKindAdjustedCredit,
		Description: "Test funding",
	})
	require.NoError(t, err)
}

func setTier(t *testing.T, store *ledger.Store, accountID string, tier model.Tier) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx *ledger.Tx) error {
		_, err := tx.SetTier(ctx, accountID, tier)
		return err
	}))
}

func reload(t *testing.T, store *ledger.Store, accountID string) *model.Account {
	t.Helper()
	account, err := store.Account(context.Background(), accountID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

func requireBalanced(t *testing.T, store *ledger.Store, accountID string) {
	t.Helper()
	rec, err := store.Reconcile(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, rec.Balanced(), "ledger out of balance: %+v", rec)
}

type published struct {
	AccountID string
	Event     sse.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, accountID string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{AccountID: accountID, Event: event})
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event.Type == eventType {
			n++
		}
	}
	return n
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*billing.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}
