package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/credit-ledger-go/internal/middleware"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

type fakeSubscriber struct {
	subscribed   chan *sse.Client
	unsubscribed chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		subscribed:   make(chan *sse.Client, 1),
		unsubscribed: make(chan struct{}),
	}
}

func (f *fakeSubscriber) Subscribe(accountID string) *sse.Client {
	client := &sse.Client{
		AccountID: accountID,
		Events:    make(chan sse.Event, 4),
		Done:      make(chan struct{}),
	}
	f.subscribed <- client
	return client
}

func (f *fakeSubscriber) Unsubscribe(*sse.Client) {
	close(f.unsubscribed)
}

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 401 without an account", func(t *testing.T) {
		handler := NewEventsHandler(newFakeSubscriber(), nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stream is unavailable without a broker", func(t *testing.T) {
		srv := newTestServer(t)
		account := srv.account(t, "kinde_events")
		handler := NewEventsHandler(nil, srv.accounts)

		req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		req = req.WithContext(middleware.WithAccount(req.Context(), account))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("sends the current balance then relays events", func(t *testing.T) {
		srv := newTestServer(t)
		account := srv.account(t, "kinde_events")
		subscriber := newFakeSubscriber()
		handler := NewEventsHandler(subscriber, srv.accounts)

		ctx, cancel := context.WithCancel(middleware.WithAccount(context.Background(), account))
		req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			handler.ServeHTTP(rec, req)
			close(done)
		}()

		var client *sse.Client
		select {
		case client = <-subscriber.subscribed:
		case <-time.After(time.Second):
			t.Fatal("handler never subscribed")
		}

		event, err := sse.NewEvent(sse.EventBalanceUpdated, map[string]int64{"credits": 2})
		require.NoError(t, err)
		client.Events <- event

		time.Sleep(20 * time.Millisecond)
		cancel()
		<-done
		<-subscriber.unsubscribed

		body := rec.Body.String()
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, `"credits":3`)
		assert.Contains(t, body, "event: balance_updated\n")
		assert.Contains(t, body, `data: {"credits":2}`)
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: sse.EventActionUpdated,
		Data: json.RawMessage(`{"status":"fulfilled"}`),
	})

	assert.NoError(t, err)
	assert.Equal(t, "event: action_updated\ndata: {\"status\":\"fulfilled\"}\n\n", rec.Body.String())
}
