package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAccountCreate         EventType = "account_create"
	EventAuthFailure           EventType = "auth_failure"
	EventAdminAuthFailure      EventType = "admin_auth_failure"
	EventRateLimitExceed       EventType = "rate_limit_exceeded"
	EventSignatureInvalid      EventType = "webhook_signature_invalid"
	EventWebhookDuplicate      EventType = "webhook_duplicate"
	EventWebhookAccountMissing EventType = "webhook_account_not_found"
	EventWebhookUnknownPlan    EventType = "webhook_unknown_plan"
	EventCreditApplied         EventType = "credit_applied"
	EventManualAdjustment      EventType = "manual_adjustment"
	EventActionRejected        EventType = "action_rejected"
	EventCompensation          EventType = "compensation"
	EventCompensationFailed    EventType = "compensation_failed"
	EventLedgerDrift           EventType = "ledger_drift"
)

// alertEvents are logged at error level so operators are paged.
var alertEvents = map[EventType]bool{
	EventWebhookAccountMissing: true,
	EventWebhookUnknownPlan:    true,
	EventCompensationFailed:    true,
	EventLedgerDrift:           true,
}

type Event struct {
	Type       EventType
	ExternalID string
	AccountID  string
	IP         string
	UserAgent  string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "ledger").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.ExternalID != "" {
		logger = logger.With().Str("external_id", event.ExternalID).Logger()
	}
	if event.AccountID != "" {
		logger = logger.With().Str("account_id", event.AccountID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	if alertEvents[event.Type] {
		logEvent = logger.Error()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
