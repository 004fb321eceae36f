package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

type AccountSummary struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	Credits      int64              `json:"credits"`
	VideoCredits int64              `json:"videoCredits"`
	Tier         model.Tier         `json:"tier"`
	Limits       entitlement.Limits `json:"limits"`
}

type AdjustParams struct {
	AccountID   string
	Pool        model.Pool
	Amount      int64
	Description string
	Reference   *string
	Actor       string
}

type AccountService struct {
	store     *ledger.Store
	publisher sse.Publisher
}

func NewAccountService(store *ledger.Store, publisher sse.Publisher) *AccountService {
	return &AccountService{store: store, publisher: publisher}
}

func (s *AccountService) GetOrCreate(ctx context.Context, externalID, email string) (*model.Account, error) {
	return s.store.GetOrCreateAccount(ctx, externalID, email)
}

func (s *AccountService) Summary(ctx context.Context, account *model.Account) (*AccountSummary, error) {
	current, err := s.store.Account(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if current == nil {
		return nil, apperrors.AccountNotFound(account.ID)
	}
	limits, err := entitlement.Resolve(current.Tier)
	if err != nil {
		return nil, err
	}
	return &AccountSummary{
		ID:           current.ID,
		Email:        current.Email,
		Credits:      current.Balance,
		VideoCredits: current.VideoBalance,
		Tier:         current.Tier,
		Limits:       limits,
	}, nil
}

// Transactions lists ledger entries newest first.
func (s *AccountService) Transactions(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, int, error) {
	entries, err := s.store.Entries(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	total, err := s.store.CountEntries(ctx, accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, total, nil
}

func (s *AccountService) List(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	accounts, total, err := s.store.Accounts(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	return accounts, total, nil
}

func (s *AccountService) Reconcile(ctx context.Context, accountID string) (*model.Reconciliation, error) {
	return s.store.Reconcile(ctx, accountID)
}

func (s *AccountService) Drift(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	drift, err := s.store.FindDrift(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("find drift: %w", err)
	}
	if drift == nil {
		drift = []model.Reconciliation{}
	}
	return drift, nil
}

// Adjust applies an operator correction as an adjusted_credit entry. Negative
// amounts are allowed but can never overdraw the pool.
func (s *AccountService) Adjust(ctx context.Context, params AdjustParams) (*ledger.ChangeResult, error) {
	if params.Pool == "" {
		params.Pool = model.PoolGeneral
	}
	if params.Description == "" {
		params.Description = "Manual adjustment"
	}

	result, err := s.store.ApplyLedgerChange(ctx, ledger.ChangeParams{
		AccountID:   params.AccountID,
		Pool:        params.Pool,
		Amount:      params.Amount,
		Kind:        model.EntryKindAdjustedCredit,
		Description: params.Description,
		Reference:   params.Reference,
	})
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"entry_id": result.Entry.ID,
		"pool":     string(params.Pool),
		"amount":   params.Amount,
		"actor":    params.Actor,
	}
	if params.Reference != nil {
		details["reference"] = *params.Reference
	}
	audit.Log(ctx, audit.Event{
		Type:      audit.EventManualAdjustment,
		AccountID: params.AccountID,
		Details:   details,
	})
	log.Info().
		Str("accountId", params.AccountID).
		Int64("amount", params.Amount).
		Int64("balance", result.NewBalance()).
		Msg("account adjusted")

	publishBalance(ctx, s.publisher, result.Account)
	return result, nil
}
