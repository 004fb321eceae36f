package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.Account, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.Account, error)
	Count(ctx context.Context) (int, error)
	// CreateIfAbsent inserts the account unless the external id exists.
	// It returns nil when another row already holds the external id.
	CreateIfAbsent(ctx context.Context, params model.CreateAccountParams) (*model.Account, error)
	// AddToBalance applies delta to the pool only if the result stays
	// non-negative. It returns nil when no row was updated.
	AddToBalance(ctx context.Context, id string, pool model.Pool, delta int64) (*model.Account, error)
	SetTier(ctx context.Context, id string, tier model.Tier) (*model.Account, error)
	Reconcile(ctx context.Context, id string) (*model.Reconciliation, error)
	FindDrift(ctx context.Context, limit int) ([]model.Reconciliation, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AccountRepository
}

type accountRepo struct {
	db sqlxDB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) WithTx(tx *sqlx.Tx) AccountRepository {
	return &accountRepo{db: tx}
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE external_id = $1
	`, externalID)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts`)
	return count, err
}

func (r *accountRepo) CreateIfAbsent(ctx context.Context, params model.CreateAccountParams) (*model.Account, error) {
	id := newID()
	ts := now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, external_id, email, balance, video_balance, seed_balance, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $4, $5, $6, $6)
		ON CONFLICT (external_id) DO NOTHING
	`, id, params.ExternalID, params.Email, params.SeedBalance, model.TierFree, ts)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *accountRepo) AddToBalance(ctx context.Context, id string, pool model.Pool, delta int64) (*model.Account, error) {
	var query string
	switch pool {
	case model.PoolGeneral:
		query = `
			UPDATE accounts SET balance = balance + $1, updated_at = $2
			WHERE id = $3 AND balance + $1 >= 0
		`
	case model.PoolVideo:
		query = `
			UPDATE accounts SET video_balance = video_balance + $1, updated_at = $2
			WHERE id = $3 AND video_balance + $1 >= 0
		`
	default:
		return nil, fmt.Errorf("unknown pool %q", pool)
	}

	result, err := r.db.ExecContext(ctx, query, delta, now(), id)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *accountRepo) SetTier(ctx context.Context, id string, tier model.Tier) (*model.Account, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET tier = $1, updated_at = $2
		WHERE id = $3
	`, tier, now(), id)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

const reconcileSelect = `
	SELECT a.id AS account_id, a.balance, a.video_balance, a.seed_balance,
		COALESCE(SUM(CASE WHEN e.pool = $1 THEN e.amount ELSE 0 END), 0) AS general_sum,
		COALESCE(SUM(CASE WHEN e.pool = $2 THEN e.amount ELSE 0 END), 0) AS video_sum
	FROM accounts a
	LEFT JOIN ledger_entries e ON e.account_id = a.id
`

func (r *accountRepo) Reconcile(ctx context.Context, id string) (*model.Reconciliation, error) {
	var rec model.Reconciliation
	err := r.db.GetContext(ctx, &rec, reconcileSelect+`
		WHERE a.id = $3
		GROUP BY a.id, a.balance, a.video_balance, a.seed_balance
	`, model.PoolGeneral, model.PoolVideo, id)
	return HandleNotFound(&rec, err)
}

func (r *accountRepo) FindDrift(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	var recs []model.Reconciliation
	err := r.db.SelectContext(ctx, &recs, reconcileSelect+`
		GROUP BY a.id, a.balance, a.video_balance, a.seed_balance
		HAVING a.balance <> a.seed_balance + COALESCE(SUM(CASE WHEN e.pool = $1 THEN e.amount ELSE 0 END), 0)
			OR a.video_balance <> COALESCE(SUM(CASE WHEN e.pool = $2 THEN e.amount ELSE 0 END), 0)
		LIMIT $3
	`, model.PoolGeneral, model.PoolVideo, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
