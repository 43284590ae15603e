package reconciler

import (
	"context"
	"log/slog"
	"time"
)

// Worker drives PollInbox on a fixed interval until its context is
// cancelled.
type Worker struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

func NewWorker(r *Reconciler, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{reconciler: r, interval: interval, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	if !w.reconciler.Enabled() {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			summary, err := w.reconciler.PollInbox(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "inbox poll aborted",
					"scanned", summary.Scanned,
					"matched", summary.Matched,
					"error", err.Error(),
				)
				continue
			}
			if summary.Scanned > 0 {
				w.logger.InfoContext(ctx, "inbox poll finished",
					"scanned", summary.Scanned,
					"matched", summary.Matched,
				)
			}
		}
	}
}
