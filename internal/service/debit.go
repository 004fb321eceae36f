package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

const defaultDebitDescription = "Analyzed video content"

type DebitParams struct {
	AccountID string
	Pool      model.Pool
	// Amount overrides the tier price when positive. Zero means the price
	// of Feature.
	Amount      int64
	Feature     entitlement.Feature
	Description string
	Reference   *string
}

type Receipt struct {
	EntryID               string     `json:"entryId"`
	Pool                  model.Pool `json:"pool"`
	Amount                int64      `json:"amount"`
	RemainingBalance      int64      `json:"remaining"`
	RemainingVideoBalance int64      `json:"remainingVideo"`
}

func newReceipt(result *ledger.ChangeResult) *Receipt {
	return &Receipt{
		EntryID:               result.Entry.ID,
		Pool:                  result.Entry.Pool,
		Amount:                -result.Entry.Amount,
		RemainingBalance:      result.Account.Balance,
		RemainingVideoBalance: result.Account.VideoBalance,
	}
}

type DebitService struct {
	store     *ledger.Store
	publisher sse.Publisher
}

func NewDebitService(store *ledger.Store, publisher sse.Publisher) *DebitService {
	return &DebitService{store: store, publisher: publisher}
}

// Debit charges the account for one unit of consumption. The balance check
// and the usage entry commit together or not at all.
func (s *DebitService) Debit(ctx context.Context, params DebitParams) (*Receipt, error) {
	var result *ledger.ChangeResult
	err := s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		var err error
		result, err = s.debitInTx(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("accountId", params.AccountID).
		Str("entryId", result.Entry.ID).
		Int64("amount", result.Entry.Amount).
		Int64("balance", result.Account.Balance).
		Msg("account debited")

	publishBalance(ctx, s.publisher, result.Account)
	return newReceipt(result), nil
}

func (s *DebitService) debitInTx(ctx context.Context, tx *ledger.Tx, params DebitParams) (*ledger.ChangeResult, error) {
	if params.Amount < 0 {
		return nil, apperrors.InvalidInput("amount", "must be positive")
	}
	if params.Pool == "" {
		params.Pool = model.PoolGeneral
	}
	if params.Feature == "" {
		params.Feature = entitlement.FeatureAnalysis
	}
	if params.Description == "" {
		params.Description = defaultDebitDescription
	}
	// Video requests pay through VideoRequestService so the pending action
	// and its debit commit together; analyses only spend general credits.
	if params.Feature == entitlement.FeatureVideoRequest {
		return nil, apperrors.InvalidInput("feature", "video requests are created through the video request endpoint")
	}
	if params.Pool != model.PoolGeneral {
		return nil, apperrors.InvalidInput("pool", "analysis is paid from the general pool")
	}

	account, err := tx.Account(ctx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, apperrors.AccountNotFound(params.AccountID)
	}

	limits, err := entitlement.Resolve(account.Tier)
	if err != nil {
		return nil, err
	}
	cost, allowed, err := limits.Cost(params.Feature)
	if err != nil {
		return nil, apperrors.InvalidInput("feature", string(params.Feature))
	}
	if !allowed {
		return nil, apperrors.FeatureNotAvailable(string(params.Feature))
	}

	amount := params.Amount
	if amount == 0 {
		amount = cost
	}

	return tx.ApplyChange(ctx, ledger.ChangeParams{
		AccountID:   account.ID,
		Pool:        params.Pool,
		Amount:      -amount,
		Kind:        model.EntryKindUsage,
		Description: params.Description,
		Reference:   params.Reference,
	})
}

// Refund writes a compensating adjusted_credit entry that returns amount to
// the pool it was taken from.
func (s *DebitService) Refund(ctx context.Context, accountID string, pool model.Pool, amount int64, description string, reference *string) (*ledger.ChangeResult, error) {
	result, err := s.store.ApplyLedgerChange(ctx, ledger.ChangeParams{
		AccountID:   accountID,
		Pool:        pool,
		Amount:      amount,
		Kind:        model.EntryKindAdjustedCredit,
		Description: description,
		Reference:   reference,
	})
	if err != nil {
		return nil, err
	}
	publishBalance(ctx, s.publisher, result.Account)
	return result, nil
}
