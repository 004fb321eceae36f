package middleware

import (
	"net/http"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/httputil"
	"github.com/openclaw/credit-ledger-go/internal/util"
)

// AdminMiddleware guards operator routes with a static bearer token checked
// against its bcrypt hash. An empty hash disables the admin surface.
type AdminMiddleware struct {
	tokenHash string
}

func NewAdminMiddleware(tokenHash string) *AdminMiddleware {
	return &AdminMiddleware{tokenHash: tokenHash}
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin access is disabled"))
			return
		}

		token := extractToken(r)
		if token == "" || !util.CheckPasswordHash(token, m.tokenHash) {
			details := map[string]interface{}{"path": r.URL.Path}
			if token != "" {
				details["token"] = util.MaskToken(token)
			}
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAdminAuthFailure,
				Details: details,
			})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid admin token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
