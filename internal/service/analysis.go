package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/analyzer"
	"github.com/openclaw/credit-ledger-go/internal/audit"
	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (json.RawMessage, error)
}

type AnalysisResult struct {
	Receipt *Receipt                 `json:"receipt"`
	Record  *model.ConsumptionRecord `json:"record"`
}

// AnalysisService charges for an analysis before running it and gives the
// credit back when the analysis or its record cannot be completed.
type AnalysisService struct {
	debits   *DebitService
	history  *HistoryService
	analyzer Analyzer
}

func NewAnalysisService(debits *DebitService, history *HistoryService, remote Analyzer) *AnalysisService {
	return &AnalysisService{
		debits:   debits,
		history:  history,
		analyzer: remote,
	}
}

func (s *AnalysisService) Analyze(ctx context.Context, account *model.Account, videoURL string, deep bool) (*AnalysisResult, error) {
	videoURL = strings.TrimSpace(videoURL)
	if !validVideoURL(videoURL) {
		return nil, apperrors.InvalidInput("url", "must be an http(s) URL")
	}

	feature := entitlement.FeatureAnalysis
	if deep {
		feature = entitlement.FeatureDeepAnalysis
	}
	receipt, err := s.debits.Debit(ctx, DebitParams{
		AccountID:   account.ID,
		Pool:        model.PoolGeneral,
		Feature:     feature,
		Description: defaultDebitDescription,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, analyzer.Request{
		URL:  videoURL,
		Tier: string(account.Tier),
		Deep: deep,
	})
	if err != nil {
		s.compensate(ctx, account.ID, receipt, "Refund: analysis failed")
		return nil, apperrors.External("analyzer", err)
	}

	record, err := s.history.SaveRecord(context.WithoutCancel(ctx), account.ID, videoURL, result)
	if err != nil {
		s.compensate(ctx, account.ID, receipt, "Refund: analysis could not be saved")
		return nil, err
	}

	return &AnalysisResult{Receipt: receipt, Record: record}, nil
}

// compensate returns the debited amount. It runs detached from the caller's
// cancellation so an aborted request still gets its refund.
func (s *AnalysisService) compensate(ctx context.Context, accountID string, receipt *Receipt, description string) {
	ctx = context.WithoutCancel(ctx)
	reference := receipt.EntryID

	refund, err := s.debits.Refund(ctx, accountID, receipt.Pool, receipt.Amount, description, &reference)
	if err != nil {
		log.Error().
			Err(err).
			Str("accountId", accountID).
			Str("entryId", receipt.EntryID).
			Int64("amount", receipt.Amount).
			Msg("compensating refund failed")
		audit.Log(ctx, audit.Event{
			Type:      audit.EventCompensationFailed,
			AccountID: accountID,
			Details: map[string]interface{}{
				"entry_id": receipt.EntryID,
				"amount":   receipt.Amount,
				"error":    err.Error(),
			},
		})
		return
	}

	receipt.RemainingBalance = refund.Account.Balance
	receipt.RemainingVideoBalance = refund.Account.VideoBalance
	audit.Log(ctx, audit.Event{
		Type:      audit.EventCompensation,
		AccountID: accountID,
		Details: map[string]interface{}{
			"entry_id":  receipt.EntryID,
			"refund_id": refund.Entry.ID,
			"amount":    receipt.Amount,
		},
	})
}

func validVideoURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
