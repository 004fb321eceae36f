package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/httputil"
	"github.com/openclaw/credit-ledger-go/internal/middleware"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs failures that are not the caller's fault before writing
// the error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.StatusFromCode(apperrors.GetCode(err)) >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	httputil.WriteError(w, err)
}

// decodeJSON reads a JSON body. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

// requireAccount returns the authenticated account or writes a 401.
func requireAccount(w http.ResponseWriter, r *http.Request) *model.Account {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
		return nil
	}
	return account
}
