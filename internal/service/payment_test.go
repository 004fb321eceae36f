package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/credit-ledger-go/internal/billing"
	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

func TestPaymentService_CreateCheckout(t *testing.T) {
	ctx := context.Background()
	account := &model.Account{ID: "acc-1", Email: "buyer@example.com"}

	t.Run("creates a session for a catalog plan", func(t *testing.T) {
		gateway := &mockGateway{}
		gateway.On("CreateCheckoutSession", mock.Anything, billing.CheckoutParams{
			AccountID:   "acc-1",
			Email:       "buyer@example.com",
			AmountTotal: 2000,
			PlanName:    "Diamond Plan",
			Credits:     100,
		}).Return(&billing.Session{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil).Once()

		session, err := NewPaymentService(gateway).CreateCheckout(ctx, account, 2000)
		require.NoError(t, err)
		assert.Equal(t, "cs_1", session.ID)
		gateway.AssertExpectations(t)
	})

	t.Run("rejects amounts outside the catalog", func(t *testing.T) {
		gateway := &mockGateway{}
		_, err := NewPaymentService(gateway).CreateCheckout(ctx, account, 999)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
		gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("provider failures are external errors", func(t *testing.T) {
		gateway := &mockGateway{}
		gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()
		_, err := NewPaymentService(gateway).CreateCheckout(ctx, account, 3000)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternal))
	})
}

func TestPaymentService_Status(t *testing.T) {
	ctx := context.Background()
	gateway := &mockGateway{}
	gateway.On("RetrieveSession", mock.Anything, "cs_paid").
		Return(&billing.Session{ID: "cs_paid", PaymentStatus: "paid", Metadata: map[string]string{"userId": "acc-1"}}, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_open").
		Return(&billing.Session{ID: "cs_open", PaymentStatus: "unpaid", Metadata: map[string]string{"userId": "acc-1"}}, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_other").
		Return(&billing.Session{ID: "cs_other", PaymentStatus: "paid", Metadata: map[string]string{"userId": "acc-2", "userEmail": "b@example.com"}}, nil)
	svc := NewPaymentService(gateway)
	owner := &model.Account{ID: "acc-1", ExternalID: "kinde_1"}

	t.Run("paid sessions include metadata", func(t *testing.T) {
		status, err := svc.Status(ctx, owner, "cs_paid")
		require.NoError(t, err)
		assert.Equal(t, "paid", status.Status)
		assert.Equal(t, "acc-1", status.Metadata["userId"])
	})

	t.Run("unpaid sessions hide metadata", func(t *testing.T) {
		status, err := svc.Status(ctx, owner, "cs_open")
		require.NoError(t, err)
		assert.Equal(t, "unpaid", status.Status)
		assert.Nil(t, status.Metadata)
	})

	t.Run("sessions of other accounts are not found", func(t *testing.T) {
		status, err := svc.Status(ctx, owner, "cs_other")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
		assert.Nil(t, status)
	})

	t.Run("session id is required", func(t *testing.T) {
		_, err := svc.Status(ctx, owner, " ")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeMissingRequired))
	})

	t.Run("plans come from the catalog", func(t *testing.T) {
		plans := svc.Plans()
		require.Len(t, plans, 2)
		assert.Equal(t, int64(2000), plans[0].AmountTotal)
	})
}
