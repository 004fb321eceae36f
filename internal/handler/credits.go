package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/credit-ledger-go/internal/entitlement"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/service"
)

type CreditsHandler struct {
	debits *service.DebitService
}

func NewCreditsHandler(debits *service.DebitService) *CreditsHandler {
	return &CreditsHandler{debits: debits}
}

func (h *CreditsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/debit", h.Debit)

	return r
}

// POST /api/credits/debit
// Charges the caller for one unit of consumption. Every field is optional:
// an empty body debits the tier price of an analysis from the general pool.
func (h *CreditsHandler) Debit(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	var req struct {
		Pool        model.Pool          `json:"pool"`
		Feature     entitlement.Feature `json:"feature"`
		Amount      int64               `json:"amount"`
		Description string              `json:"description"`
		Reference   *string             `json:"reference"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Pool != "" && !req.Pool.Valid() {
		writeError(w, r, apperrors.InvalidInput("pool", string(req.Pool)))
		return
	}

	receipt, err := h.debits.Debit(r.Context(), service.DebitParams{
		AccountID:   account.ID,
		Pool:        req.Pool,
		Amount:      req.Amount,
		Feature:     req.Feature,
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"receipt": receipt,
	})
}
