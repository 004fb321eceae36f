package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/credit-ledger-go/internal/service"
)

type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Summary)
	r.Get("/transactions", h.Transactions)
	r.Get("/reconcile", h.Reconcile)

	return r
}

// GET /api/account
func (h *AccountHandler) Summary(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	summary, err := h.accounts.Summary(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GET /api/account/transactions
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	page := ParsePage(r)
	entries, total, err := h.accounts.Transactions(r.Context(), account.ID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page.Listing("transactions", entries, total))
}

// GET /api/account/reconcile
// Compares the stored balances with the sum of the caller's ledger.
func (h *AccountHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	rec, err := h.accounts.Reconcile(r.Context(), account.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reconciliation": rec,
		"balanced":       rec.Balanced(),
	})
}
