package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

const maxVideoTitleLength = 200

type VideoRequestParams struct {
	AccountID      string
	IdempotencyKey string
	Title          string
	Notes          string
	Preferences    model.VideoPreferences
}

type VideoRequestResult struct {
	Action *model.PendingAction
	// Replayed is true when the idempotency key was already used and no
	// new debit happened.
	Replayed         bool
	RemainingCredits int64
	RemainingVideo   int64

	account *model.Account
}

type VideoRequestService struct {
	store     *ledger.Store
	publisher sse.Publisher
}

func NewVideoRequestService(store *ledger.Store, publisher sse.Publisher) *VideoRequestService {
	return &VideoRequestService{store: store, publisher: publisher}
}

// Create records a pending video request and debits its cost in the same
// transaction. A video credit is spent when one is available, otherwise the
// general pool pays the tier price.
func (s *VideoRequestService) Create(ctx context.Context, params VideoRequestParams) (*VideoRequestResult, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, apperrors.MissingRequired("title")
	}
	if len(title) > maxVideoTitleLength {
		return nil, apperrors.InvalidInput("title", fmt.Sprintf("must be at most %d characters", maxVideoTitleLength))
	}
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	details, err := json.Marshal(model.VideoRequestDetails{
		Title:       title,
		Notes:       params.Notes,
		Preferences: params.Preferences,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}

	var result VideoRequestResult
	err = s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		account, err := tx.Account(ctx, params.AccountID)
		if err != nil {
			return fmt.Errorf("find account: %w", err)
		}
		if account == nil {
			return apperrors.AccountNotFound(params.AccountID)
		}

		limits, err := entitlement.Resolve(account.Tier)
		if err != nil {
			return err
		}
		pool, cost := model.PoolGeneral, limits.CostPerVideoRequest
		if limits.VideoCreditsPerRequest > 0 && account.VideoBalance >= limits.VideoCreditsPerRequest {
			pool, cost = model.PoolVideo, limits.VideoCreditsPerRequest
		}

		action, err := tx.Actions.CreateIfAbsent(ctx, model.CreatePendingActionParams{
			AccountID:      account.ID,
			Kind:           model.ActionKindVideoRequest,
			IdempotencyKey: key,
			Cost:           cost,
			Pool:           pool,
			Details:        model.JSON(details),
		})
		if err != nil {
			return fmt.Errorf("create pending action: %w", err)
		}
		if action == nil {
			existing, err := tx.Actions.FindByIdempotencyKey(ctx, account.ID, key)
			if err != nil {
				return fmt.Errorf("find pending action: %w", err)
			}
			if existing == nil {
				return fmt.Errorf("pending action %s vanished after conflict", key)
			}
			result = VideoRequestResult{
				Action:           existing,
				Replayed:         true,
				RemainingCredits: account.Balance,
				RemainingVideo:   account.VideoBalance,
			}
			return nil
		}

		action, change, err := chargeVideoRequest(ctx, videoRequestTx{tx}, action, limits, "Video request: "+title)
		if err != nil {
			return err
		}
		result = VideoRequestResult{
			Action:           action,
			RemainingCredits: change.Account.Balance,
			RemainingVideo:   change.Account.VideoBalance,
			account:          change.Account,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		log.Info().
			Str("accountId", params.AccountID).
			Str("actionId", result.Action.ID).
			Msg("video request replayed")
		return &result, nil
	}

	log.Info().
		Str("accountId", params.AccountID).
		Str("actionId", result.Action.ID).
		Str("pool", string(result.Action.Pool)).
		Int64("cost", result.Action.Cost).
		Msg("video request created")

	publishBalance(ctx, s.publisher, result.account)
	return &result, nil
}

// videoCharger is the part of a ledger transaction that pays for a video
// request.
type videoCharger interface {
	ApplyChange(ctx context.Context, params ledger.ChangeParams) (*ledger.ChangeResult, error)
	SetCharge(ctx context.Context, id string, pool model.Pool, cost int64) (*model.PendingAction, error)
}

type videoRequestTx struct {
	*ledger.Tx
}

func (t videoRequestTx) SetCharge(ctx context.Context, id string, pool model.Pool, cost int64) (*model.PendingAction, error) {
	return t.Actions.SetCharge(ctx, id, pool, cost)
}

// chargeVideoRequest debits the pool recorded on action. The pool was
// picked from an unlocked read, so a concurrent request may have spent the
// video credit since; the general pool then pays the tier price instead and
// the action is repriced in the same transaction.
func chargeVideoRequest(ctx context.Context, tx videoCharger, action *model.PendingAction, limits entitlement.Limits, description string) (*model.PendingAction, *ledger.ChangeResult, error) {
	debit := func(pool model.Pool, cost int64) (*ledger.ChangeResult, error) {
		return tx.ApplyChange(ctx, ledger.ChangeParams{
			AccountID:   action.AccountID,
			Pool:        pool,
			Amount:      -cost,
			Kind:        model.EntryKindUsage,
			Description: description,
			Reference:   &action.ID,
		})
	}

	change, err := debit(action.Pool, action.Cost)
	if err == nil || action.Pool != model.PoolVideo || !apperrors.Is(err, apperrors.ErrCodeInsufficientFunds) {
		return action, change, err
	}

	repriced, err := tx.SetCharge(ctx, action.ID, model.PoolGeneral, limits.CostPerVideoRequest)
	if err != nil {
		return nil, nil, fmt.Errorf("reprice pending action: %w", err)
	}
	if repriced == nil {
		return nil, nil, fmt.Errorf("pending action %s is no longer pending", action.ID)
	}
	change, err = debit(repriced.Pool, repriced.Cost)
	if err != nil {
		return nil, nil, err
	}
	return repriced, change, nil
}

func (s *VideoRequestService) List(ctx context.Context, accountID string, limit, offset int) ([]model.PendingAction, error) {
	return s.store.Actions().FindByAccountID(ctx, accountID, limit, offset)
}

func (s *VideoRequestService) Pending(ctx context.Context, limit, offset int) ([]model.PendingAction, error) {
	return s.store.Actions().FindByStatus(ctx, model.ActionStatusPending, limit, offset)
}

// Fulfill marks a pending action as delivered.
func (s *VideoRequestService) Fulfill(ctx context.Context, actionID string) (*model.PendingAction, error) {
	var action *model.PendingAction
	err := s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		var err error
		action, err = transition(ctx, tx, actionID, model.ActionStatusFulfilled)
		return err
	})
	if err != nil {
		return nil, err
	}
	publishAction(ctx, s.publisher, action)
	return action, nil
}

// Reject cancels a pending action and refunds its cost to the pool it was
// taken from, in one transaction.
func (s *VideoRequestService) Reject(ctx context.Context, actionID, reason string) (*model.PendingAction, error) {
	var (
		action *model.PendingAction
		refund *ledger.ChangeResult
	)
	err := s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		var err error
		action, err = transition(ctx, tx, actionID, model.ActionStatusRejected)
		if err != nil {
			return err
		}
		description := "Refund: video request rejected"
		if reason != "" {
			description += " (" + reason + ")"
		}
		refund, err = tx.ApplyChange(ctx, ledger.ChangeParams{
			AccountID:   action.AccountID,
			Pool:        action.Pool,
			Amount:      action.Cost,
			Kind:        model.EntryKindAdjustedCredit,
			Description: description,
			Reference:   &action.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventActionRejected,
		AccountID: action.AccountID,
		Details: map[string]interface{}{
			"action_id": action.ID,
			"refund":    action.Cost,
			"pool":      string(action.Pool),
			"reason":    reason,
		},
	})
	publishAction(ctx, s.publisher, action)
	publishBalance(ctx, s.publisher, refund.Account)
	return action, nil
}

func transition(ctx context.Context, tx *ledger.Tx, actionID string, to model.ActionStatus) (*model.PendingAction, error) {
	current, err := tx.Actions.FindByID(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("find pending action: %w", err)
	}
	if current == nil {
		return nil, apperrors.NotFound("Action")
	}
	updated, err := tx.Actions.Transition(ctx, actionID, model.ActionStatusPending, to)
	if err != nil {
		return nil, fmt.Errorf("transition pending action: %w", err)
	}
	if updated == nil {
		return nil, apperrors.InvalidTransition(string(current.Status), string(to))
	}
	return updated, nil
}
