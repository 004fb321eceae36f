package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

// LedgerEntryRepository is append-only: entries are never updated or deleted.
type LedgerEntryRepository interface {
	Create(ctx context.Context, params model.CreateLedgerEntryParams) (*model.LedgerEntry, error)
	FindByID(ctx context.Context, id string) (*model.LedgerEntry, error)
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error)
	FindByReference(ctx context.Context, reference string) ([]model.LedgerEntry, error)
	CountByAccountID(ctx context.Context, accountID string) (int, error)
	WithTx(tx *sqlx.Tx) LedgerEntryRepository
}

type ledgerEntryRepo struct {
	db sqlxDB
}

func NewLedgerEntryRepository(db *sqlx.DB) LedgerEntryRepository {
	return &ledgerEntryRepo{db: db}
}

func (r *ledgerEntryRepo) WithTx(tx *sqlx.Tx) LedgerEntryRepository {
	return &ledgerEntryRepo{db: tx}
}

func (r *ledgerEntryRepo) Create(ctx context.Context, params model.CreateLedgerEntryParams) (*model.LedgerEntry, error) {
	entry := model.LedgerEntry{
		ID:          newID(),
		AccountID:   params.AccountID,
		Amount:      params.Amount,
		Pool:        params.Pool,
		Kind:        params.Kind,
		Description: params.Description,
		Reference:   params.Reference,
		CreatedAt:   now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, pool, kind, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.AccountID, entry.Amount, entry.Pool, entry.Kind, entry.Description, entry.Reference, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerEntryRepo) FindByID(ctx context.Context, id string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM ledger_entries WHERE id = $1
	`, id)
	return HandleNotFound(&entry, err)
}

func (r *ledgerEntryRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerEntryRepo) FindByReference(ctx context.Context, reference string) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries
		WHERE reference = $1
		ORDER BY created_at ASC
	`, reference)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerEntryRepo) CountByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1
	`, accountID)
	return count, err
}
