package service

import (
	"context"
	"fmt"

	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

const paymentStatusPaid = "paid"

type CreditParams struct {
	// Candidates are account references in lookup order. Each is tried as an
	// internal id, then as an external id.
	Candidates    []string
	AmountTotal   int64
	PaymentStatus string
	EventID       string
}

type CreditResult struct {
	Status  model.WebhookStatus
	Account *model.Account
	Plan    *entitlement.Plan
	Reason  string
}

// CreditService turns a verified payment into balance. It only runs inside a
// transaction owned by the caller so the purchase and its dedup record commit
// together.
type CreditService struct{}

func NewCreditService() *CreditService {
	return &CreditService{}
}

func (s *CreditService) Credit(ctx context.Context, tx *ledger.Tx, params CreditParams) (*CreditResult, error) {
	if params.PaymentStatus != paymentStatusPaid {
		return &CreditResult{
			Status: model.WebhookStatusUnpaid,
			Reason: fmt.Sprintf("payment status %q", params.PaymentStatus),
		}, nil
	}

	account, err := tx.ResolveAccount(ctx, params.Candidates...)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return &CreditResult{
			Status: model.WebhookStatusAccountNotFound,
			Reason: fmt.Sprintf("no account for %v", params.Candidates),
		}, nil
	}

	plan, ok := entitlement.PlanForAmount(params.AmountTotal)
	if !ok {
		return &CreditResult{
			Status:  model.WebhookStatusUnknownPlan,
			Account: account,
			Reason:  fmt.Sprintf("no plan for amount %d", params.AmountTotal),
		}, nil
	}

	var reference *string
	if params.EventID != "" {
		reference = &params.EventID
	}

	if _, err := tx.ApplyChange(ctx, ledger.ChangeParams{
		AccountID:   account.ID,
		Pool:        model.PoolGeneral,
		Amount:      plan.Credits,
		Kind:        model.EntryKindPurchase,
		Description: fmt.Sprintf("Purchased %s plan", plan.Tier),
		Reference:   reference,
	}); err != nil {
		return nil, fmt.Errorf("credit general pool: %w", err)
	}

	if plan.VideoCredits > 0 {
		if _, err := tx.ApplyChange(ctx, ledger.ChangeParams{
			AccountID:   account.ID,
			Pool:        model.PoolVideo,
			Amount:      plan.VideoCredits,
			Kind:        model.EntryKindPurchase,
			Description: fmt.Sprintf("Purchased %s plan (video credits)", plan.Tier),
			Reference:   reference,
		}); err != nil {
			return nil, fmt.Errorf("credit video pool: %w", err)
		}
	}

	updated, err := tx.SetTier(ctx, account.ID, plan.Tier)
	if err != nil {
		return nil, err
	}

	return &CreditResult{
		Status:  model.WebhookStatusApplied,
		Account: updated,
		Plan:    &plan,
	}, nil
}
