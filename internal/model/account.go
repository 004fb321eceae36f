package model

import (
	"time"
)

type Account struct {
	ID           string    `db:"id" json:"id"`
	ExternalID   string    `db:"external_id" json:"externalId"`
	Email        string    `db:"email" json:"email"`
	Balance      int64     `db:"balance" json:"credits"`
	VideoBalance int64     `db:"video_balance" json:"videoCredits"`
	SeedBalance  int64     `db:"seed_balance" json:"-"`
	Tier         Tier      `db:"tier" json:"tier"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// BalanceOf returns the current balance of the given pool.
func (a *Account) BalanceOf(pool Pool) int64 {
	if pool == PoolVideo {
		return a.VideoBalance
	}
	return a.Balance
}

type CreateAccountParams struct {
	ExternalID  string
	Email       string
	SeedBalance int64
}

// Reconciliation compares stored balances against the sum of ledger entries.
type Reconciliation struct {
	AccountID    string `db:"account_id" json:"accountId"`
	Balance      int64  `db:"balance" json:"balance"`
	VideoBalance int64  `db:"video_balance" json:"videoBalance"`
	SeedBalance  int64  `db:"seed_balance" json:"seedBalance"`
	GeneralSum   int64  `db:"general_sum" json:"generalSum"`
	VideoSum     int64  `db:"video_sum" json:"videoSum"`
}

func (r Reconciliation) Balanced() bool {
	return r.Balance == r.SeedBalance+r.GeneralSum && r.VideoBalance == r.VideoSum
}
