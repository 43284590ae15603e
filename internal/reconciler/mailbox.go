// Package reconciler correlates unstructured email replies in a shared
// inbox with outstanding third-party verification requests. It is a
// passive side channel: progress never blocks on it.
package reconciler

import (
	"context"
	"time"
)

// Message is one candidate inbound reply, already flattened from the
// mail transport.
type Message struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  []string
	To          []string
	Cc          []string
	DeliveredTo []string
	Subject     string
	Body        string
	Date        time.Time
}

// Mailbox is the inbound mail port. Fetch returns unseen messages newer
// than since, capped at limit; MarkSeen flags a matched message so later
// runs skip it.
type Mailbox interface {
	Fetch(ctx context.Context, since time.Time, limit int) ([]Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}
