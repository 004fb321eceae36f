package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/audit"
	"github.com/openclaw/credit-ledger-go/internal/model"
)

const (
	driftScanLimit = 100
	runTimeout     = 30 * time.Second
)

type WebhookCounter interface {
	CountByStatus(ctx context.Context, status model.WebhookStatus) (int, error)
}

type DriftFinder interface {
	FindDrift(ctx context.Context, limit int) ([]model.Reconciliation, error)
}

// Report is the result of one reconciliation pass.
type Report struct {
	Unresolved map[model.WebhookStatus]int
	Drift      []model.Reconciliation
}

// ReconciliationJob periodically surfaces payments that credited nobody and
// accounts whose balance disagrees with their ledger. It only reports; fixes
// go through the admin adjust endpoint.
type ReconciliationJob struct {
	webhooks WebhookCounter
	ledger   DriftFinder
	interval time.Duration
	done     chan struct{}
}

func NewReconciliationJob(webhooks WebhookCounter, ledger DriftFinder, interval time.Duration) *ReconciliationJob {
	return &ReconciliationJob{
		webhooks: webhooks,
		ledger:   ledger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *ReconciliationJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("reconciliation job started")
}

func (j *ReconciliationJob) Stop() {
	close(j.done)
	log.Info().Msg("reconciliation job stopped")
}

func (j *ReconciliationJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.tick()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *ReconciliationJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	j.RunOnce(ctx)
}

// RunOnce performs a single pass. Failures of one check are logged and do
// not stop the other.
func (j *ReconciliationJob) RunOnce(ctx context.Context) Report {
	report := Report{Unresolved: make(map[model.WebhookStatus]int)}

	for _, status := range []model.WebhookStatus{model.WebhookStatusAccountNotFound, model.WebhookStatusUnknownPlan} {
		count, err := j.webhooks.CountByStatus(ctx, status)
		if err != nil {
			log.Error().Err(err).Str("status", string(status)).Msg("failed to count unresolved webhooks")
			continue
		}
		report.Unresolved[status] = count
		if count > 0 {
			log.Error().
				Str("alert", "unresolved_payments").
				Str("status", string(status)).
				Int("count", count).
				Msg("payments acknowledged without credit need operator review")
		}
	}

	drift, err := j.ledger.FindDrift(ctx, driftScanLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to scan for ledger drift")
		return report
	}
	report.Drift = drift

	for _, rec := range drift {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventLedgerDrift,
			AccountID: rec.AccountID,
			Details: map[string]interface{}{
				"balance":       rec.Balance,
				"video_balance": rec.VideoBalance,
				"seed_balance":  rec.SeedBalance,
				"general_sum":   rec.GeneralSum,
				"video_sum":     rec.VideoSum,
			},
		})
	}

	return report
}
