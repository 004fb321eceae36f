package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/credit-ledger-go/internal/service"
)

type CheckoutHandler struct {
	payments *service.PaymentService
}

func NewCheckoutHandler(payments *service.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{payments: payments}
}

func (h *CheckoutHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/status", h.Status)

	return r
}

// GET /api/plans
func (h *CheckoutHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": h.payments.Plans(),
	})
}

// POST /api/checkout
// The plan is chosen by its exact amount; the caller's balance changes only
// when the provider's webhook arrives.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	var req struct {
		AmountTotal int64 `json:"amountTotal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.payments.CreateCheckout(r.Context(), account, req.AmountTotal)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /api/checkout/status?session_id=
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	status, err := h.payments.Status(r.Context(), account, r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
