// Package ledger owns every mutation of account balances. Balance changes
// and their ledger entries are always written in one transaction.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	"github.com/openclaw/credit-ledger-go/internal/database"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/repository"
)

// ChangeParams describes one signed balance change.
type ChangeParams struct {
	AccountID   string
	Pool        model.Pool
	Amount      int64
	Kind        model.EntryKind
	Description string
	Reference   *string
}

type ChangeResult struct {
	Account *model.Account
	Entry   *model.LedgerEntry
}

// NewBalance is the balance of the changed pool after the change.
func (r *ChangeResult) NewBalance() int64 {
	return r.Account.BalanceOf(r.Entry.Pool)
}

type Store struct {
	db          *database.DB
	accounts    repository.AccountRepository
	entries     repository.LedgerEntryRepository
	records     repository.ConsumptionRepository
	actions     repository.PendingActionRepository
	webhooks    repository.WebhookEventRepository
	seedBalance int64
}

func NewStore(db *database.DB, seedBalance int64) *Store {
	return &Store{
		db:          db,
		accounts:    repository.NewAccountRepository(db.DB),
		entries:     repository.NewLedgerEntryRepository(db.DB),
		records:     repository.NewConsumptionRepository(db.DB),
		actions:     repository.NewPendingActionRepository(db.DB),
		webhooks:    repository.NewWebhookEventRepository(db.DB),
		seedBalance: seedBalance,
	}
}

// Tx is a transaction-scoped view of the store. It must not be used after
// the function passed to WithTx returns.
type Tx struct {
	accounts repository.AccountRepository
	entries  repository.LedgerEntryRepository
	Records  repository.ConsumptionRepository
	Actions  repository.PendingActionRepository
	Webhooks repository.WebhookEventRepository
}

// WithTx runs fn in one database transaction. Nothing fn wrote survives an
// error return. A context cancelled before the transaction begins aborts
// without touching storage.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(sqlTx *sqlx.Tx) error {
		return fn(s.bind(sqlTx))
	})
	return database.ClassifyError(err)
}

func (s *Store) bind(sqlTx *sqlx.Tx) *Tx {
	return &Tx{
		accounts: s.accounts.WithTx(sqlTx),
		entries:  s.entries.WithTx(sqlTx),
		Records:  s.records.WithTx(sqlTx),
		Actions:  s.actions.WithTx(sqlTx),
		Webhooks: s.webhooks.WithTx(sqlTx),
	}
}

// GetOrCreateAccount returns the account for an identity-provider subject,
// creating it with the seed balance on first sight. Concurrent callers for
// the same subject are settled by the unique key on external_id.
func (s *Store) GetOrCreateAccount(ctx context.Context, externalID, email string) (*model.Account, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperrors.MissingRequired("externalId")
	}

	created, err := s.accounts.CreateIfAbsent(ctx, model.CreateAccountParams{
		ExternalID:  externalID,
		Email:       email,
		SeedBalance: s.seedBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", database.ClassifyError(err))
	}
	if created != nil {
		log.Info().
			Str("accountId", created.ID).
			Str("externalId", externalID).
			Int64("seed", created.SeedBalance).
			Msg("account created")
		audit.Log(ctx, audit.Event{
			Type:       audit.EventAccountCreate,
			ExternalID: externalID,
			AccountID:  created.ID,
			Details:    map[string]interface{}{"seed_balance": created.SeedBalance},
		})
		return created, nil
	}

	account, err := s.accounts.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s vanished after conflict", externalID)
	}
	return account, nil
}

// ApplyLedgerChange applies one change in its own transaction.
func (s *Store) ApplyLedgerChange(ctx context.Context, params ChangeParams) (*ChangeResult, error) {
	var result *ChangeResult
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		result, err = tx.ApplyChange(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Account(ctx context.Context, id string) (*model.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

// Accounts lists accounts newest first with the total count.
func (s *Store) Accounts(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	accounts, err := s.accounts.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	total, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	return accounts, total, nil
}

func (s *Store) Entries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	return s.entries.FindByAccountID(ctx, accountID, limit, offset)
}

func (s *Store) CountEntries(ctx context.Context, accountID string) (int, error) {
	return s.entries.CountByAccountID(ctx, accountID)
}

func (s *Store) EntriesByReference(ctx context.Context, reference string) ([]model.LedgerEntry, error) {
	return s.entries.FindByReference(ctx, reference)
}

func (s *Store) Reconcile(ctx context.Context, accountID string) (*model.Reconciliation, error) {
	rec, err := s.accounts.Reconcile(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reconcile account: %w", err)
	}
	if rec == nil {
		return nil, apperrors.AccountNotFound(accountID)
	}
	return rec, nil
}

// FindDrift lists accounts whose balances disagree with their ledger.
func (s *Store) FindDrift(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	return s.accounts.FindDrift(ctx, limit)
}

func (s *Store) Records() repository.ConsumptionRepository {
	return s.records
}

func (s *Store) Actions() repository.PendingActionRepository {
	return s.actions
}

func (s *Store) Webhooks() repository.WebhookEventRepository {
	return s.webhooks
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ApplyChange checks and moves the balance with one conditional update, then
// appends the matching entry. A change that would overdraw the pool returns
// InsufficientFunds and writes nothing.
func (tx *Tx) ApplyChange(ctx context.Context, params ChangeParams) (*ChangeResult, error) {
	if !params.Pool.Valid() {
		return nil, apperrors.InvalidInput("pool", string(params.Pool))
	}
	if !params.Kind.Valid() {
		return nil, apperrors.InvalidInput("kind", string(params.Kind))
	}
	if params.Amount == 0 {
		return nil, apperrors.InvalidInput("amount", "must not be zero")
	}

	account, err := tx.accounts.AddToBalance(ctx, params.AccountID, params.Pool, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", database.ClassifyError(err))
	}
	if account == nil {
		current, err := tx.accounts.FindByID(ctx, params.AccountID)
		if err != nil {
			return nil, fmt.Errorf("find account: %w", err)
		}
		if current == nil {
			return nil, apperrors.AccountNotFound(params.AccountID)
		}
		return nil, apperrors.InsufficientFunds(string(params.Pool), current.BalanceOf(params.Pool), -params.Amount)
	}

	entry, err := tx.entries.Create(ctx, model.CreateLedgerEntryParams{
		AccountID:   params.AccountID,
		Amount:      params.Amount,
		Pool:        params.Pool,
		Kind:        params.Kind,
		Description: params.Description,
		Reference:   params.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", database.ClassifyError(err))
	}

	return &ChangeResult{Account: account, Entry: entry}, nil
}

func (tx *Tx) SetTier(ctx context.Context, accountID string, tier model.Tier) (*model.Account, error) {
	if !tier.Valid() {
		return nil, apperrors.InvalidInput("tier", string(tier))
	}
	account, err := tx.accounts.SetTier(ctx, accountID, tier)
	if err != nil {
		return nil, fmt.Errorf("set tier: %w", err)
	}
	if account == nil {
		return nil, apperrors.AccountNotFound(accountID)
	}
	return account, nil
}

func (tx *Tx) Account(ctx context.Context, id string) (*model.Account, error) {
	return tx.accounts.FindByID(ctx, id)
}

// ResolveAccount tries each candidate as an internal id, then as an external
// id, in order. It returns nil when none matches.
func (tx *Tx) ResolveAccount(ctx context.Context, candidates ...string) (*model.Account, error) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		account, err := tx.accounts.FindByID(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("find account by id: %w", err)
		}
		if account != nil {
			return account, nil
		}
		account, err = tx.accounts.FindByExternalID(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("find account by external id: %w", err)
		}
		if account != nil {
			return account, nil
		}
	}
	return nil, nil
}
