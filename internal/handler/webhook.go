package handler

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/httputil"
	"github.com/openclaw/credit-ledger-go/internal/service"
)

const stripeSignatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// POST /webhooks/stripe
// Every verified delivery is acknowledged, including duplicates and events
// that credit nothing. Only a failure before commit asks the provider to
// retry.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Unable to read request body"))
		return
	}

	outcome, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeInvalidSignature) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventSignatureInvalid,
				Details: map[string]interface{}{"reason": err.Error()},
			})
			httputil.WriteError(w, apperrors.InvalidSignature())
			return
		}
		log.Error().Err(err).Msg("webhook processing failed, provider will retry")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"status":    outcome.Status,
		"duplicate": outcome.Duplicate,
	})
}
