package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

type balancePayload struct {
	Credits      int64      `json:"credits"`
	VideoCredits int64      `json:"videoCredits"`
	Tier         model.Tier `json:"tier"`
}

// publishBalance is called after commit. Delivery failures are logged only.
func publishBalance(ctx context.Context, publisher sse.Publisher, account *model.Account) {
	if publisher == nil || account == nil {
		return
	}
	event, err := sse.NewEvent(sse.EventBalanceUpdated, balancePayload{
		Credits:      account.Balance,
		VideoCredits: account.VideoBalance,
		Tier:         account.Tier,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode balance event")
		return
	}
	if err := publisher.Publish(ctx, account.ID, event); err != nil {
		log.Warn().Err(err).Str("accountId", account.ID).Msg("failed to publish balance event")
	}
}

func publishAction(ctx context.Context, publisher sse.Publisher, action *model.PendingAction) {
	if publisher == nil || action == nil {
		return
	}
	event, err := sse.NewEvent(sse.EventActionUpdated, action)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode action event")
		return
	}
	if err := publisher.Publish(ctx, action.AccountID, event); err != nil {
		log.Warn().Err(err).Str("actionId", action.ID).Msg("failed to publish action event")
	}
}
