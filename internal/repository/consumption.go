package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

type ConsumptionRepository interface {
	Create(ctx context.Context, params model.CreateConsumptionRecordParams) (*model.ConsumptionRecord, error)
	// FindRecentByAccountID returns records newest first.
	FindRecentByAccountID(ctx context.Context, accountID string, limit int) ([]model.ConsumptionRecord, error)
	CountByAccountID(ctx context.Context, accountID string) (int, error)
	WithTx(tx *sqlx.Tx) ConsumptionRepository
}

type consumptionRepo struct {
	db sqlxDB
}

func NewConsumptionRepository(db *sqlx.DB) ConsumptionRepository {
	return &consumptionRepo{db: db}
}

func (r *consumptionRepo) WithTx(tx *sqlx.Tx) ConsumptionRepository {
	return &consumptionRepo{db: tx}
}

func (r *consumptionRepo) Create(ctx context.Context, params model.CreateConsumptionRecordParams) (*model.ConsumptionRecord, error) {
	record := model.ConsumptionRecord{
		ID:        newID(),
		AccountID: params.AccountID,
		SourceURL: params.SourceURL,
		Payload:   params.Payload,
		CreatedAt: now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consumption_records (id, account_id, source_url, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.AccountID, record.SourceURL, record.Payload, record.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *consumptionRepo) FindRecentByAccountID(ctx context.Context, accountID string, limit int) ([]model.ConsumptionRecord, error) {
	var records []model.ConsumptionRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM consumption_records
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *consumptionRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM consumption_records WHERE account_id = $1
	`, accountID)
	return count, err
}
