package model

import (
	"time"
)

// WebhookEvent is the dedup record of one payment provider event.
type WebhookEvent struct {
	ProviderEventID string        `db:"provider_event_id" json:"providerEventId"`
	EventType       string        `db:"event_type" json:"eventType"`
	Status          WebhookStatus `db:"status" json:"status"`
	AccountRef      *string       `db:"account_ref" json:"accountRef,omitempty"`
	AccountID       *string       `db:"account_id" json:"accountId,omitempty"`
	AmountTotal     int64         `db:"amount_total" json:"amountTotal"`
	Payload         JSON          `db:"payload" json:"-"`
	ErrorMessage    *string       `db:"error_message" json:"errorMessage,omitempty"`
	ReceivedAt      time.Time     `db:"received_at" json:"receivedAt"`
	ProcessedAt     *time.Time    `db:"processed_at" json:"processedAt,omitempty"`
}

type CreateWebhookEventParams struct {
	ProviderEventID string
	EventType       string
	AccountRef      *string
	AmountTotal     int64
	Payload         JSON
}

type UpdateWebhookEventParams struct {
	Status       WebhookStatus
	AccountID    *string
	ErrorMessage *string
}
