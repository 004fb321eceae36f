package model

import (
	"time"
)

const ActionKindVideoRequest = "video_request"

// PendingAction is a paid request whose cost was debited when it was created.
type PendingAction struct {
	ID             string       `db:"id" json:"id"`
	AccountID      string       `db:"account_id" json:"accountId"`
	Kind           string       `db:"kind" json:"kind"`
	IdempotencyKey string       `db:"idempotency_key" json:"idempotencyKey"`
	Cost           int64        `db:"cost" json:"cost"`
	Pool           Pool         `db:"pool" json:"pool"`
	Status         ActionStatus `db:"status" json:"status"`
	Details        JSON         `db:"details" json:"details"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

type CreatePendingActionParams struct {
	AccountID      string
	Kind           string
	IdempotencyKey string
	Cost           int64
	Pool           Pool
	Details        JSON
}

// VideoRequestDetails is the payload stored with a video request.
type VideoRequestDetails struct {
	Title       string           `json:"ideaTitle"`
	Notes       string           `json:"notes,omitempty"`
	Preferences VideoPreferences `json:"preferences"`
}

type VideoPreferences struct {
	Style    string `json:"style,omitempty"`
	Duration string `json:"duration,omitempty"`
	Tone     string `json:"tone,omitempty"`
}
