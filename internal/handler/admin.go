package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/service"
	"github.com/openclaw/credit-ledger-go/internal/util"
)

const (
	defaultDriftLimit = 100
	maxDriftLimit     = 1000
)

var unresolvedStatuses = []model.WebhookStatus{
	model.WebhookStatusAccountNotFound,
	model.WebhookStatusUnknownPlan,
}

// AdminHandler serves operator tooling. Mount it behind AdminMiddleware.
type AdminHandler struct {
	accounts *service.AccountService
	webhooks *service.WebhookService
	requests *service.VideoRequestService
}

func NewAdminHandler(
	accounts *service.AccountService,
	webhooks *service.WebhookService,
	requests *service.VideoRequestService,
) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		webhooks: webhooks,
		requests: requests,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Webhooks
	r.Get("/webhooks", h.ListWebhooks)

	// Accounts
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts/{id}/adjust", h.AdjustAccount)
	r.Get("/drift", h.Drift)

	// Actions
	r.Get("/actions", h.ListPendingActions)
	r.Post("/actions/{id}/fulfill", h.FulfillAction)
	r.Post("/actions/{id}/reject", h.RejectAction)

	return r
}

// GET /admin/webhooks?status=
// Lists recorded deliveries that acknowledged without crediting anyone.
func (h *AdminHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	status := model.WebhookStatus(r.URL.Query().Get("status"))
	if !util.OneOf(status, unresolvedStatuses...) {
		writeError(w, r, apperrors.InvalidInput("status", string(status)))
		return
	}
	if status == "" {
		status = model.WebhookStatusAccountNotFound
	}

	page := ParsePage(r)
	events, err := h.webhooks.Unresolved(r.Context(), status, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.WebhookEvent{}
	}

	total, err := h.webhooks.CountByStatus(r.Context(), status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := page.Listing("events", events, total)
	body["status"] = status
	writeJSON(w, http.StatusOK, body)
}

// GET /admin/accounts
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page := ParsePage(r)
	accounts, total, err := h.accounts.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page.Listing("accounts", accounts, total))
}

// POST /admin/accounts/{id}/adjust
func (h *AdminHandler) AdjustAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if !util.IsValidUUID(accountID) {
		writeError(w, r, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	var req struct {
		Pool        model.Pool `json:"pool"`
		Amount      int64      `json:"amount"`
		Description string     `json:"description"`
		Reference   *string    `json:"reference"`
		Actor       string     `json:"actor"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == 0 {
		writeError(w, r, apperrors.InvalidInput("amount", "must not be zero"))
		return
	}
	if req.Pool != "" && !req.Pool.Valid() {
		writeError(w, r, apperrors.InvalidInput("pool", string(req.Pool)))
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	result, err := h.accounts.Adjust(r.Context(), service.AdjustParams{
		AccountID:   accountID,
		Pool:        req.Pool,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   req.Reference,
		Actor:       req.Actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("accountId", accountID).
		Int64("amount", req.Amount).
		Str("actor", req.Actor).
		Msg("manual adjustment applied")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entry":   result.Entry,
		"account": result.Account,
	})
}

// GET /admin/drift?limit=
func (h *AdminHandler) Drift(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultDriftLimit, maxDriftLimit)
	drift, err := h.accounts.Drift(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": drift,
		"count":    len(drift),
	})
}

// GET /admin/actions
func (h *AdminHandler) ListPendingActions(w http.ResponseWriter, r *http.Request) {
	page := ParsePage(r)
	actions, err := h.requests.Pending(r.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []model.PendingAction{}
	}

	writeJSON(w, http.StatusOK, page.Listing("actions", actions, -1))
}

// POST /admin/actions/{id}/fulfill
func (h *AdminHandler) FulfillAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")
	if !util.IsValidUUID(actionID) {
		writeError(w, r, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	action, err := h.requests.Fulfill(r.Context(), actionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
}

// POST /admin/actions/{id}/reject
// Rejecting refunds the action's cost to the pool it was paid from.
func (h *AdminHandler) RejectAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")
	if !util.IsValidUUID(actionID) {
		writeError(w, r, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	action, err := h.requests.Reject(r.Context(), actionID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
}
