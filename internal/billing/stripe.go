// Package billing wraps the Stripe API: checkout sessions for plan purchases
// and signature verification of incoming webhooks.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

type Options struct {
	SecretKey     string
	WebhookSecret string
	Tolerance     time.Duration
	SiteURL       string
}

type Billing struct {
	sc            *stripe.Client
	webhookSecret string
	tolerance     time.Duration
	siteURL       string
}

func New(opts Options) *Billing {
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Billing{
		sc:            stripe.NewClient(opts.SecretKey),
		webhookSecret: opts.WebhookSecret,
		tolerance:     tolerance,
		siteURL:       opts.SiteURL,
	}
}

type CheckoutParams struct {
	AccountID   string
	Email       string
	AmountTotal int64
	PlanName    string
	Credits     int64
}

// Session is the subset of a checkout session the ledger cares about.
type Session struct {
	ID            string            `json:"sessionId"`
	URL           string            `json:"url,omitempty"`
	PaymentStatus string            `json:"status"`
	AmountTotal   int64             `json:"amountTotal"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func sessionFrom(cs *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Metadata:      cs.Metadata,
	}
}

// CreateCheckoutSession starts a one-off payment. The account id travels in
// the session metadata and comes back on the completion webhook.
func (b *Billing) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	sp := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: []*string{stripe.String("card")},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(params.PlanName),
						Description: stripe.String(fmt.Sprintf("%d credits", params.Credits)),
					},
					UnitAmount: stripe.Int64(params.AmountTotal),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(b.siteURL + "/dashboard?payment=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(b.siteURL + "/pricing?canceled=true"),
		ClientReferenceID: stripe.String(params.AccountID),
		Metadata: map[string]string{
			"userId":    params.AccountID,
			"userEmail": params.Email,
			"credits":   strconv.FormatInt(params.Credits, 10),
		},
	}
	if params.Email != "" {
		sp.CustomerEmail = stripe.String(params.Email)
	}

	cs, err := b.sc.V1CheckoutSessions.Create(ctx, sp)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return sessionFrom(cs), nil
}

func (b *Billing) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	cs, err := b.sc.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return sessionFrom(cs), nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw body and
// rejects timestamps outside the tolerance window.
func (b *Billing) VerifyWebhook(payload []byte, header string) (*stripe.Event, error) {
	if b.webhookSecret == "" {
		return nil, fmt.Errorf("webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, b.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                b.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}
