package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-cargo/meridian-cargo/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRatesPTAXRefresh re-primes the PTAX quote cache from storage.
	TaskRatesPTAXRefresh = "rates:ptax_refresh"
)

// QuoteRefresher is the slice of the rates service the refresh task needs.
type QuoteRefresher interface {
	RefreshQuotes(ctx context.Context) (int, error)
}

// NewPTAXRefreshTask constructs the refresh task. It carries no payload;
// the job always refreshes every stored quote.
func NewPTAXRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskRatesPTAXRefresh, nil)
}

// NewPTAXRefreshHandler returns the asynq handler for TaskRatesPTAXRefresh.
func NewPTAXRefreshHandler(logger *slog.Logger, refresher QuoteRefresher, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := refresher.RefreshQuotes(ctx)
		if err != nil {
			logger.Error("ptax refresh", slog.Any("error", err))
			return err
		}
		metrics.QuoteRefresh()
		logger.Info("ptax refresh complete", slog.Int("quotes", n))
		return nil
	}
}
