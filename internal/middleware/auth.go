package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/httputil"
	"github.com/openclaw/credit-ledger-go/internal/identity"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

type contextKey string

const AccountContextKey contextKey = "account"

func GetAccount(ctx context.Context) *model.Account {
	if account, ok := ctx.Value(AccountContextKey).(*model.Account); ok {
		return account
	}
	return nil
}

// WithAccount returns a context carrying the authenticated account.
func WithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, AccountContextKey, account)
}

type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

type AccountProvider interface {
	GetOrCreate(ctx context.Context, externalID, email string) (*model.Account, error)
}

// AuthMiddleware authenticates identity-provider bearer tokens and loads the
// caller's account, creating it with the seed balance on first sight.
type AuthMiddleware struct {
	verifier TokenVerifier
	accounts AccountProvider
}

func NewAuthMiddleware(verifier TokenVerifier, accounts AccountProvider) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, accounts: accounts}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": err.Error(), "path": r.URL.Path},
			})
			if errors.Is(err, identity.ErrExpiredToken) {
				httputil.WriteError(w, apperrors.New(apperrors.ErrCodeTokenExpired, "Token expired"))
				return
			}
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		account, err := m.accounts.GetOrCreate(r.Context(), claims.Subject, claims.Email)
		if err != nil {
			log.Error().Err(err).Str("externalId", claims.Subject).Msg("auth middleware: account lookup failed")
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

// extractToken reads the bearer header, falling back to the token query
// parameter for EventSource clients that cannot set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
