package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/service"
)

type AnalysisHandler struct {
	analyses *service.AnalysisService
}

func NewAnalysisHandler(analyses *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses}
}

func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)

	return r
}

// POST /api/analyses
func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	var req struct {
		URL  string `json:"url"`
		Deep bool   `json:"deep"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.URL == "" {
		writeError(w, r, apperrors.MissingRequired("url"))
		return
	}

	result, err := h.analyses.Analyze(r.Context(), account, req.URL, req.Deep)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
