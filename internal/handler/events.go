package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
	"github.com/openclaw/credit-ledger-go/internal/httputil"
	"github.com/openclaw/credit-ledger-go/internal/service"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

type Subscriber interface {
	Subscribe(accountID string) *sse.Client
	Unsubscribe(client *sse.Client)
}

type EventsHandler struct {
	broker    Subscriber
	accounts  *service.AccountService
	heartbeat time.Duration
}

// NewEventsHandler streams balance updates. A nil broker disables the
// stream.
func NewEventsHandler(broker Subscriber, accounts *service.AccountService) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		accounts:  accounts,
		heartbeat: sse.HeartbeatInterval,
	}
}

// GET /api/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := requireAccount(w, r)
	if account == nil {
		return
	}

	if h.broker == nil {
		httputil.WriteError(w, apperrors.New(apperrors.ErrCodeExternal, "Event stream is not configured"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()

	summary, err := h.accounts.Summary(ctx, account)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(account.ID)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("accountId", account.ID).Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "connected", summary); err != nil {
		log.Debug().Err(err).Str("accountId", account.ID).Msg("failed to send connected event")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("accountId", account.ID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("accountId", account.ID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("accountId", account.ID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
