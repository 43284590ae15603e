// Package events records application lifecycle events. Domain services
// emit onto a channel; a worker drains into a store, and an optional
// Kafka publisher fans the stream out to downstream consumers.
package events

import (
	"context"
	"time"

	"certflow/pkg/domain"
)

type Action string

const (
	ActionStatusChanged      Action = "application_status_changed"
	ActionRequestCreated     Action = "third_party_request_created"
	ActionSubmissionRecorded Action = "third_party_submission_recorded"
	ActionRequestCompleted   Action = "third_party_request_completed"
	ActionVerificationMatch  Action = "verification_matched"
)

// Event captures one action against an application. Actor is the user
// who caused it, empty for system-initiated actions like reconciler
// matches. Detail carries action-specific context (e.g. the new status
// or the matched party role).
type Event struct {
	ApplicationID domain.ApplicationID
	Action        Action
	Actor         string
	Detail        map[string]string
	Timestamp     time.Time
}

// Store persists the event stream.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByApplication(ctx context.Context, appID domain.ApplicationID) ([]Event, error)
}

// Publisher emits events to an external sink. Emit must not block the
// caller's request path.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) {}
