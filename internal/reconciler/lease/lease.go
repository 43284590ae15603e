// Package lease provides the cross-instance mutual exclusion for inbox
// polling. One deployment runs many replicas; only the lease holder
// scans the shared mailbox.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const key = "certflow:reconciler:lease"

// releaseScript deletes the lease only when it still belongs to the
// caller, so a lease that expired and was re-acquired by another
// instance is never released out from under it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lease is a best-effort distributed lock over a single Redis key.
type Lease struct {
	client *redis.Client
	ttl    time.Duration
	holder string
}

// New returns a lease with the given TTL. A nil client yields a nil
// lease, which Acquire treats as always granted; the caller then falls
// back to its in-process guard alone.
func New(client *redis.Client, ttl time.Duration) *Lease {
	if client == nil {
		return nil
	}
	return &Lease{client: client, ttl: ttl}
}

// Acquire attempts to take the lease. A Redis error is reported as not
// acquired so two instances never both poll on a split brain.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	if l == nil {
		return true, nil
	}
	l.holder = uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, l.holder, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release gives the lease back if this instance still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{key}, l.holder).Err()
}
