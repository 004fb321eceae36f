package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/config"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain check function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	db    Pinger
	redis Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// WithRedis adds Redis to the report. Ledger operations keep working without
// it, so an unreachable Redis degrades the status but keeps the 200.
func (h *HealthHandler) WithRedis(p Pinger) *HealthHandler {
	h.redis = p
	return h
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	body := map[string]any{
		"status":    "ok",
		"database":  "ok",
		"timestamp": time.Now().UnixMilli(),
	}

	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database unreachable")
		body["status"] = "degraded"
		body["database"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	if h.redis != nil {
		body["redis"] = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			body["status"] = "degraded"
			body["redis"] = "unreachable"
		}
	}

	writeJSON(w, http.StatusOK, body)
}
