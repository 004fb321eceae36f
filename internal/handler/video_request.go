package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/service"
)

const idempotencyKeyHeader = "Idempotency-Key"

type VideoRequestHandler struct {
	requests *service.VideoRequestService
}

func NewVideoRequestHandler(requests *service.VideoRequestService) *VideoRequestHandler {
	return &VideoRequestHandler{requests: requests}
}

func (h *VideoRequestHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	return r
}

// GET /api/video-requests
func (h *VideoRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	page := ParsePage(r)
	actions, err := h.requests.List(r.Context(), account.ID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []model.PendingAction{}
	}

	writeJSON(w, http.StatusOK, page.Listing("requests", actions, -1))
}

// POST /api/video-requests
// A repeated Idempotency-Key returns the original request with 200 and
// charges nothing.
func (h *VideoRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	var req struct {
		IdeaTitle   string                 `json:"ideaTitle"`
		Notes       string                 `json:"notes"`
		Preferences model.VideoPreferences `json:"preferences"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.requests.Create(r.Context(), service.VideoRequestParams{
		AccountID:      account.ID,
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
		Title:          req.IdeaTitle,
		Notes:          req.Notes,
		Preferences:    req.Preferences,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}

	writeJSON(w, status, map[string]any{
		"success":          true,
		"request":          result.Action,
		"replayed":         result.Replayed,
		"remainingCredits": result.RemainingCredits,
		"remainingVideo":   result.RemainingVideo,
	})
}
