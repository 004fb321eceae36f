package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

type WebhookEventRepository interface {
	// CreateIfAbsent records a provider event as seen. It returns nil when the
	// event id was already recorded.
	CreateIfAbsent(ctx context.Context, params model.CreateWebhookEventParams) (*model.WebhookEvent, error)
	FindByID(ctx context.Context, providerEventID string) (*model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, providerEventID string, params model.UpdateWebhookEventParams) (*model.WebhookEvent, error)
	FindByStatus(ctx context.Context, status model.WebhookStatus, limit, offset int) ([]model.WebhookEvent, error)
	CountByStatus(ctx context.Context, status model.WebhookStatus) (int, error)
	WithTx(tx *sqlx.Tx) WebhookEventRepository
}

type webhookEventRepo struct {
	db sqlxDB
}

func NewWebhookEventRepository(db *sqlx.DB) WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) WithTx(tx *sqlx.Tx) WebhookEventRepository {
	return &webhookEventRepo{db: tx}
}

func (r *webhookEventRepo) CreateIfAbsent(ctx context.Context, params model.CreateWebhookEventParams) (*model.WebhookEvent, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider_event_id, event_type, status, account_ref, amount_total, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_event_id) DO NOTHING
	`, params.ProviderEventID, params.EventType, model.WebhookStatusProcessing,
		params.AccountRef, params.AmountTotal, params.Payload, now())
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, params.ProviderEventID)
}

func (r *webhookEventRepo) FindByID(ctx context.Context, providerEventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.GetContext(ctx, &event, `
		SELECT * FROM webhook_events WHERE provider_event_id = $1
	`, providerEventID)
	return HandleNotFound(&event, err)
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, providerEventID string, params model.UpdateWebhookEventParams) (*model.WebhookEvent, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET
			status = $1,
			account_id = COALESCE($2, account_id),
			error_message = $3,
			processed_at = $4
		WHERE provider_event_id = $5
	`, params.Status, params.AccountID, params.ErrorMessage, now(), providerEventID)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, providerEventID)
}

func (r *webhookEventRepo) FindByStatus(ctx context.Context, status model.WebhookStatus, limit, offset int) ([]model.WebhookEvent, error) {
	var events []model.WebhookEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM webhook_events
		WHERE status = $1
		ORDER BY received_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *webhookEventRepo) CountByStatus(ctx context.Context, status model.WebhookStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM webhook_events WHERE status = $1
	`, status)
	return count, err
}
