package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

type PendingActionRepository interface {
	// CreateIfAbsent inserts a pending action unless the account already used
	// the idempotency key. It returns nil on conflict.
	CreateIfAbsent(ctx context.Context, params model.CreatePendingActionParams) (*model.PendingAction, error)
	FindByID(ctx context.Context, id string) (*model.PendingAction, error)
	FindByIdempotencyKey(ctx context.Context, accountID, key string) (*model.PendingAction, error)
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.PendingAction, error)
	FindByStatus(ctx context.Context, status model.ActionStatus, limit, offset int) ([]model.PendingAction, error)
	// Transition moves an action from one status to another. It returns nil
	// when the action is not currently in the from status.
	Transition(ctx context.Context, id string, from, to model.ActionStatus) (*model.PendingAction, error)
	// SetCharge records the pool and cost that actually paid for a pending
	// action. It returns nil when the action is no longer pending.
	SetCharge(ctx context.Context, id string, pool model.Pool, cost int64) (*model.PendingAction, error)
	WithTx(tx *sqlx.Tx) PendingActionRepository
}

type pendingActionRepo struct {
	db sqlxDB
}

func NewPendingActionRepository(db *sqlx.DB) PendingActionRepository {
	return &pendingActionRepo{db: db}
}

func (r *pendingActionRepo) WithTx(tx *sqlx.Tx) PendingActionRepository {
	return &pendingActionRepo{db: tx}
}

func (r *pendingActionRepo) CreateIfAbsent(ctx context.Context, params model.CreatePendingActionParams) (*model.PendingAction, error) {
	id := newID()
	ts := now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, account_id, kind, idempotency_key, cost, pool, status, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (account_id, idempotency_key) DO NOTHING
	`, id, params.AccountID, params.Kind, params.IdempotencyKey, params.Cost, params.Pool,
		model.ActionStatusPending, params.Details, ts)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *pendingActionRepo) FindByID(ctx context.Context, id string) (*model.PendingAction, error) {
	var action model.PendingAction
	err := r.db.GetContext(ctx, &action, `
		SELECT * FROM pending_actions WHERE id = $1
	`, id)
	return HandleNotFound(&action, err)
}

func (r *pendingActionRepo) FindByIdempotencyKey(ctx context.Context, accountID, key string) (*model.PendingAction, error) {
	var action model.PendingAction
	err := r.db.GetContext(ctx, &action, `
		SELECT * FROM pending_actions
		WHERE account_id = $1 AND idempotency_key = $2
	`, accountID, key)
	return HandleNotFound(&action, err)
}

func (r *pendingActionRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.PendingAction, error) {
	var actions []model.PendingAction
	err := r.db.SelectContext(ctx, &actions, `
		SELECT * FROM pending_actions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *pendingActionRepo) FindByStatus(ctx context.Context, status model.ActionStatus, limit, offset int) ([]model.PendingAction, error) {
	var actions []model.PendingAction
	err := r.db.SelectContext(ctx, &actions, `
		SELECT * FROM pending_actions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *pendingActionRepo) Transition(ctx context.Context, id string, from, to model.ActionStatus) (*model.PendingAction, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, to, now(), id, from)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *pendingActionRepo) SetCharge(ctx context.Context, id string, pool model.Pool, cost int64) (*model.PendingAction, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_actions SET pool = $1, cost = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, pool, cost, now(), id, model.ActionStatusPending)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}
