package model

import (
	"time"
)

// LedgerEntry is an immutable signed record of one balance change.
type LedgerEntry struct {
	ID          string    `db:"id" json:"id"`
	AccountID   string    `db:"account_id" json:"accountId"`
	Amount      int64     `db:"amount" json:"amount"`
	Pool        Pool      `db:"pool" json:"pool"`
	Kind        EntryKind `db:"kind" json:"kind"`
	Description string    `db:"description" json:"description"`
	Reference   *string   `db:"reference" json:"reference,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type CreateLedgerEntryParams struct {
	AccountID   string
	Amount      int64
	Pool        Pool
	Kind        EntryKind
	Description string
	Reference   *string
}

// ConsumptionRecord holds one stored result of a metered action.
type ConsumptionRecord struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"accountId"`
	SourceURL string    `db:"source_url" json:"videoUrl"`
	Payload   JSON      `db:"payload" json:"result"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateConsumptionRecordParams struct {
	AccountID string
	SourceURL string
	Payload   JSON
}
