package events

import (
	"context"
	"log/slog"
	"time"
)

// Worker drains the inbox into the store and forwards to the publisher.
// A store failure is logged, not fatal: the event stream is advisory
// and must never take the service down.
type Worker struct {
	store     Store
	publisher Publisher
	inbox     <-chan Event
	logger    *slog.Logger
}

func NewWorker(store Store, publisher Publisher, inbox <-chan Event, logger *slog.Logger) *Worker {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Worker{store: store, publisher: publisher, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now()
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.Error("append event",
					"action", string(event.Action),
					"application_id", event.ApplicationID.String(),
					"error", err)
			}
			w.publisher.Emit(ctx, event)
		}
	}
}
