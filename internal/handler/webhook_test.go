package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"
)

func completedSession(eventID, userRef string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_%s",
			"object": "checkout.session",
			"amount_total": %d,
			"payment_status": "paid",
			"metadata": {"userId": %q}
		}}
	}`, eventID, eventID, amount, userRef))
}

func signPayload(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func TestStripeWebhookRoute(t *testing.T) {
	srv := newTestServer(t)
	account := srv.account(t, "kinde_buyer")

	t.Run("applies a purchase once", func(t *testing.T) {
		payload := completedSession("evt_handler_1", account.ID, 2000)
		header := signPayload(payload, testWebhookSecret)

		rec := srv.do(t, http.MethodPost, "/webhooks/stripe", "", payload, "Stripe-Signature", header)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, true, body["received"])
		assert.Equal(t, "applied", body["status"])

		rec = srv.do(t, http.MethodPost, "/webhooks/stripe", "", payload, "Stripe-Signature", header)
		require.Equal(t, http.StatusOK, rec.Code)
		body = decode(t, rec)
		assert.Equal(t, true, body["received"])
		assert.Equal(t, true, body["duplicate"])

		general, video := srv.balance(t, account.ID)
		assert.Equal(t, int64(103), general)
		assert.Equal(t, int64(3), video)
	})

	t.Run("unknown account is acknowledged", func(t *testing.T) {
		payload := completedSession("evt_handler_2", "nobody", 2000)

		rec := srv.do(t, http.MethodPost, "/webhooks/stripe", "", payload, "Stripe-Signature", signPayload(payload, testWebhookSecret))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "account_not_found", decode(t, rec)["status"])
	})

	t.Run("forged signature", func(t *testing.T) {
		payload := completedSession("evt_handler_3", account.ID, 3000)

		rec := srv.do(t, http.MethodPost, "/webhooks/stripe", "", payload, "Stripe-Signature", signPayload(payload, "whsec_attacker"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_SIGNATURE", decode(t, rec)["code"])

		general, _ := srv.balance(t, account.ID)
		assert.Equal(t, int64(103), general)
	})

	t.Run("missing signature", func(t *testing.T) {
		payload := completedSession("evt_handler_4", account.ID, 3000)

		rec := srv.do(t, http.MethodPost, "/webhooks/stripe", "", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
