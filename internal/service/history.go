package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

type HistoryPage struct {
	Records []model.ConsumptionRecord `json:"history"`
	Visible int                       `json:"visible"`
	Total   int                       `json:"total"`
	Tier    model.Tier                `json:"tier"`
}

type HistoryService struct {
	store *ledger.Store
}

func NewHistoryService(store *ledger.Store) *HistoryService {
	return &HistoryService{store: store}
}

// ListHistory returns the newest records the account's tier may see.
func (s *HistoryService) ListHistory(ctx context.Context, account *model.Account) (*HistoryPage, error) {
	limits, err := entitlement.Resolve(account.Tier)
	if err != nil {
		return nil, err
	}

	records, err := s.store.Records().FindRecentByAccountID(ctx, account.ID, limits.MaxHistoryVisible)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	total, err := s.store.Records().CountByAccountID(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	if records == nil {
		records = []model.ConsumptionRecord{}
	}

	return &HistoryPage{
		Records: records,
		Visible: len(records),
		Total:   total,
		Tier:    account.Tier,
	}, nil
}

// SaveRecord stores a result without charging for it.
func (s *HistoryService) SaveRecord(ctx context.Context, accountID, sourceURL string, payload json.RawMessage) (*model.ConsumptionRecord, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, apperrors.MissingRequired("videoUrl")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return nil, apperrors.InvalidInput("result", "must be valid JSON")
	}

	record, err := s.store.Records().Create(ctx, model.CreateConsumptionRecordParams{
		AccountID: accountID,
		SourceURL: sourceURL,
		Payload:   model.JSON(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}
	return record, nil
}
