package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v84"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

// EventVerifier authenticates a raw webhook body against its signature header.
type EventVerifier interface {
	VerifyWebhook(payload []byte, header string) (*stripe.Event, error)
}

// VerifiedEvent is a webhook whose signature has been checked.
type VerifiedEvent struct {
	ID                string
	Type              string
	SessionID         string
	AccountRef        string
	ClientReferenceID string
	AmountTotal       int64
	PaymentStatus     string
	Payload           []byte
	// Malformed explains why a verified checkout event could not be read.
	// Such events are recorded as ignored rather than retried forever.
	Malformed string
}

func (e *VerifiedEvent) candidates() []string {
	return []string{e.AccountRef, e.ClientReferenceID}
}

type Outcome struct {
	EventID   string              `json:"eventId"`
	Status    model.WebhookStatus `json:"status"`
	Duplicate bool                `json:"duplicate"`
	AccountID string              `json:"accountId,omitempty"`
}

// WebhookService admits payment events exactly once. The dedup record and
// the credit it triggers are written in the same transaction, so a failure
// before commit leaves nothing behind and the provider's retry starts over.
type WebhookService struct {
	store     *ledger.Store
	verifier  EventVerifier
	credits   *CreditService
	publisher sse.Publisher
}

func NewWebhookService(store *ledger.Store, verifier EventVerifier, credits *CreditService, publisher sse.Publisher) *WebhookService {
	return &WebhookService{
		store:     store,
		verifier:  verifier,
		credits:   credits,
		publisher: publisher,
	}
}

// Admit verifies the signature and extracts the fields the credit engine
// needs. Nothing is stored for events that fail verification.
func (s *WebhookService) Admit(payload []byte, header string) (*VerifiedEvent, error) {
	if header == "" {
		return nil, apperrors.InvalidSignature()
	}
	event, err := s.verifier.VerifyWebhook(payload, header)
	if err != nil {
		return nil, apperrors.InvalidSignature().WithCause(err)
	}
	if event.ID == "" {
		return nil, apperrors.InvalidInput("event", "missing id")
	}

	verified := &VerifiedEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: payload,
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return verified, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		verified.Malformed = "checkout session data missing"
		return verified, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		verified.Malformed = "malformed checkout session: " + err.Error()
		return verified, nil
	}
	verified.SessionID = session.ID
	verified.AccountRef = session.Metadata["userId"]
	verified.ClientReferenceID = session.ClientReferenceID
	verified.AmountTotal = session.AmountTotal
	verified.PaymentStatus = string(session.PaymentStatus)
	return verified, nil
}

// Process records the event and applies its effect atomically. A replay of
// an already recorded event returns a duplicate outcome and changes nothing.
func (s *WebhookService) Process(ctx context.Context, event *VerifiedEvent) (*Outcome, error) {
	outcome := &Outcome{EventID: event.ID}
	var credit *CreditResult

	err := s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		var accountRef *string
		if event.AccountRef != "" {
			accountRef = &event.AccountRef
		}
		row, err := tx.Webhooks.CreateIfAbsent(ctx, model.CreateWebhookEventParams{
			ProviderEventID: event.ID,
			EventType:       event.Type,
			AccountRef:      accountRef,
			AmountTotal:     event.AmountTotal,
			Payload:         model.JSON(event.Payload),
		})
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
		if row == nil {
			existing, err := tx.Webhooks.FindByID(ctx, event.ID)
			if err != nil {
				return fmt.Errorf("find webhook event: %w", err)
			}
			outcome.Duplicate = true
			outcome.Status = model.WebhookStatusDuplicate
			if existing != nil && existing.AccountID != nil {
				outcome.AccountID = *existing.AccountID
			}
			return nil
		}

		update := model.UpdateWebhookEventParams{Status: model.WebhookStatusIgnored}
		if event.Malformed != "" {
			update.ErrorMessage = &event.Malformed
		} else if event.Type == string(stripe.EventTypeCheckoutSessionCompleted) {
			credit, err = s.credits.Credit(ctx, tx, CreditParams{
				Candidates:    event.candidates(),
				AmountTotal:   event.AmountTotal,
				PaymentStatus: event.PaymentStatus,
				EventID:       event.ID,
			})
			if err != nil {
				return err
			}
			update.Status = credit.Status
			if credit.Account != nil {
				update.AccountID = &credit.Account.ID
			}
			if credit.Reason != "" {
				update.ErrorMessage = &credit.Reason
			}
		}

		if _, err := tx.Webhooks.MarkProcessed(ctx, event.ID, update); err != nil {
			return fmt.Errorf("mark webhook event: %w", err)
		}
		outcome.Status = update.Status
		if update.AccountID != nil {
			outcome.AccountID = *update.AccountID
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("eventId", event.ID).Msg("webhook processing failed")
		return nil, err
	}

	s.report(ctx, event, outcome, credit)
	return outcome, nil
}

// Handle admits and processes a raw webhook delivery.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, header string) (*Outcome, error) {
	event, err := s.Admit(payload, header)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, event)
}

func (s *WebhookService) report(ctx context.Context, event *VerifiedEvent, outcome *Outcome, credit *CreditResult) {
	details := map[string]interface{}{
		"event_id":     event.ID,
		"event_type":   event.Type,
		"amount_total": event.AmountTotal,
	}

	switch outcome.Status {
	case model.WebhookStatusDuplicate:
		log.Info().Str("eventId", event.ID).Msg("webhook already processed")
		audit.Log(ctx, audit.Event{Type: audit.EventWebhookDuplicate, AccountID: outcome.AccountID, Details: details})

	case model.WebhookStatusApplied:
		details["tier"] = string(credit.Plan.Tier)
		details["credits"] = credit.Plan.Credits
		details["video_credits"] = credit.Plan.VideoCredits
		audit.Log(ctx, audit.Event{Type: audit.EventCreditApplied, AccountID: outcome.AccountID, Details: details})
		publishBalance(ctx, s.publisher, credit.Account)

	case model.WebhookStatusAccountNotFound:
		details["account_ref"] = event.AccountRef
		details["client_reference_id"] = event.ClientReferenceID
		audit.Log(ctx, audit.Event{Type: audit.EventWebhookAccountMissing, Details: details})

	case model.WebhookStatusUnknownPlan:
		audit.Log(ctx, audit.Event{Type: audit.EventWebhookUnknownPlan, AccountID: outcome.AccountID, Details: details})

	default:
		if event.Malformed != "" {
			log.Warn().
				Str("eventId", event.ID).
				Str("eventType", event.Type).
				Str("reason", event.Malformed).
				Msg("webhook acknowledged with unreadable data")
			return
		}
		log.Info().
			Str("eventId", event.ID).
			Str("eventType", event.Type).
			Str("status", string(outcome.Status)).
			Msg("webhook acknowledged without credit")
	}
}

// Unresolved lists recorded events in a status that needs an operator.
func (s *WebhookService) Unresolved(ctx context.Context, status model.WebhookStatus, limit, offset int) ([]model.WebhookEvent, error) {
	if !status.Unresolved() {
		return nil, apperrors.InvalidInput("status", string(status))
	}
	return s.store.Webhooks().FindByStatus(ctx, status, limit, offset)
}

func (s *WebhookService) CountByStatus(ctx context.Context, status model.WebhookStatus) (int, error) {
	return s.store.Webhooks().CountByStatus(ctx, status)
}
