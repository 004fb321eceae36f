package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/billing"
	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*billing.Session, error)
}

type PaymentStatus struct {
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PaymentService starts purchases and reports their state. Balances are only
// ever credited by the webhook path.
type PaymentService struct {
	gateway CheckoutGateway
}

func NewPaymentService(gateway CheckoutGateway) *PaymentService {
	return &PaymentService{gateway: gateway}
}

func (s *PaymentService) Plans() []entitlement.Plan {
	return entitlement.Plans()
}

// CreateCheckout opens a checkout session for one of the catalog plans.
func (s *PaymentService) CreateCheckout(ctx context.Context, account *model.Account, amountTotal int64) (*billing.Session, error) {
	plan, ok := entitlement.PlanForAmount(amountTotal)
	if !ok {
		return nil, apperrors.InvalidInput("amountTotal", "no plan for this amount")
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		AccountID:   account.ID,
		Email:       account.Email,
		AmountTotal: plan.AmountTotal,
		PlanName:    plan.Name,
		Credits:     plan.Credits,
	})
	if err != nil {
		log.Error().Err(err).Str("accountId", account.ID).Int64("amount", amountTotal).Msg("checkout session failed")
		return nil, apperrors.External("stripe", err)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("sessionId", session.ID).
		Str("plan", plan.Name).
		Msg("checkout session created")
	return session, nil
}

// Status reports the payment state of one of account's sessions. Metadata
// is only returned for paid sessions. Sessions opened for another account
// are reported as not found.
func (s *PaymentService) Status(ctx context.Context, account *model.Account, sessionID string) (*PaymentStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.MissingRequired("session_id")
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.External("stripe", err)
	}
	if owner := session.Metadata["userId"]; owner == "" || (owner != account.ID && owner != account.ExternalID) {
		log.Warn().
			Str("accountId", account.ID).
			Str("sessionId", sessionID).
			Msg("checkout status requested for a session of another account")
		return nil, apperrors.NotFound("Checkout session")
	}
	if session.PaymentStatus == paymentStatusPaid {
		return &PaymentStatus{Status: session.PaymentStatus, Metadata: session.Metadata}, nil
	}
	return &PaymentStatus{Status: session.PaymentStatus}, nil
}
