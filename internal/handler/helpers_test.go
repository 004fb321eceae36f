package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/credit-ledger-go/internal/analyzer"
	"github.com/openclaw/credit-ledger-go/internal/billing"
	"github.com/openclaw/credit-ledger-go/internal/database/databasetest"
	"github.com/openclaw/credit-ledger-go/internal/identity"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/middleware"
	"github.com/openclaw/credit-ledger-go/internal/model"
	"github.com/openclaw/credit-ledger-go/internal/service"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

const (
	testIdentitySecret = "handler-identity-secret"
	testWebhookSecret  = "whsec_handler_test"
	testAdminToken     = "handler-admin-token"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*billing.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}

type testServer struct {
	router   chi.Router
	store    *ledger.Store
	verifier *identity.Verifier
	analyzer *mockAnalyzer
	gateway  *mockGateway
	accounts *service.AccountService
}

// newTestServer wires the handlers the way the server binary does, minus
// rate limiting and the event stream.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := ledger.NewStore(databasetest.New(t), 3)
	publisher := sse.Discard{}
	remote := &mockAnalyzer{}
	gateway := &mockGateway{}
	verifier := identity.NewVerifier(testIdentitySecret, "")
	stripeBilling := billing.New(billing.Options{WebhookSecret: testWebhookSecret, Tolerance: 5 * time.Minute})

	accounts := service.NewAccountService(store, publisher)
	debits := service.NewDebitService(store, publisher)
	history := service.NewHistoryService(store)
	analyses := service.NewAnalysisService(debits, history, remote)
	requests := service.NewVideoRequestService(store, publisher)
	payments := service.NewPaymentService(gateway)
	webhooks := service.NewWebhookService(store, stripeBilling, service.NewCreditService(), publisher)

	adminHash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(verifier, accounts)
	admin := middleware.NewAdminMiddleware(string(adminHash))
	checkout := NewCheckoutHandler(payments)

	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(store).ServeHTTP)
	r.Post("/webhooks/stripe", NewWebhookHandler(webhooks).Stripe)
	r.Get("/api/plans", checkout.Plans)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Handler)
		r.Mount("/account", NewAccountHandler(accounts).Routes())
		r.Mount("/credits", NewCreditsHandler(debits).Routes())
		r.Mount("/analyses", NewAnalysisHandler(analyses).Routes())
		r.Mount("/history", NewHistoryHandler(history).Routes())
		r.Mount("/video-requests", NewVideoRequestHandler(requests).Routes())
		r.Mount("/checkout", checkout.Routes())
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.Handler)
		r.Mount("/", NewAdminHandler(accounts, webhooks, requests).Routes())
	})

	return &testServer{
		router:   r,
		store:    store,
		verifier: verifier,
		analyzer: remote,
		gateway:  gateway,
		accounts: accounts,
	}
}

func (s *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := s.verifier.Issue(subject, subject+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

// account returns the account behind subject, creating it on first use.
func (s *testServer) account(t *testing.T, subject string) *model.Account {
	t.Helper()
	account, err := s.store.GetOrCreateAccount(context.Background(), subject, subject+"@example.com")
	require.NoError(t, err)
	return account
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (s *testServer) balance(t *testing.T, accountID string) (int64, int64) {
	t.Helper()
	account, err := s.store.Account(context.Background(), accountID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance, account.VideoBalance
}
