package reconciler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"certflow/internal/platform/metrics"
	"certflow/internal/reconciler/lease"
)

// Summary is the result of one poll run.
type Summary struct {
	Scanned   int       `json:"scanned"`
	Matched   int       `json:"matched"`
	Breakdown Breakdown `json:"matchBreakdown"`
}

// Breakdown counts matches per strategy.
type Breakdown struct {
	Plus   int `json:"plus"`
	Thread int `json:"thread"`
	Token  int `json:"token"`
}

const (
	defaultWindow      = 72 * time.Hour
	defaultMaxMessages = 300
	defaultRunTimeout  = 2 * time.Minute
	excerptLimit       = 512
)

// Reconciler scans the shared inbox and marks matched verification
// slots. Runs are mutually exclusive: an in-process flag stops
// overlapping calls, and a Redis lease stops concurrent instances.
type Reconciler struct {
	mailbox     Mailbox
	requests    Requests
	lease       *lease.Lease
	window      time.Duration
	maxMessages int
	runTimeout  time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger

	running      atomic.Bool
	disabledOnce sync.Once
	now          func() time.Time
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLease attaches the cross-instance lease.
func WithLease(l *lease.Lease) Option {
	return func(r *Reconciler) { r.lease = l }
}

// WithWindow overrides the trailing scan window.
func WithWindow(d time.Duration) Option {
	return func(r *Reconciler) { r.window = d }
}

// WithMaxMessages caps how many messages one run inspects.
func WithMaxMessages(n int) Option {
	return func(r *Reconciler) { r.maxMessages = n }
}

// WithRunTimeout bounds a whole run including mailbox I/O.
func WithRunTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.runTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New builds a reconciler. A nil mailbox disables polling entirely:
// verification is auxiliary, so a missing mailbox configuration is a
// logged no-op rather than an error.
func New(mailbox Mailbox, requests Requests, opts ...Option) *Reconciler {
	r := &Reconciler{
		mailbox:     mailbox,
		requests:    requests,
		window:      defaultWindow,
		maxMessages: defaultMaxMessages,
		runTimeout:  defaultRunTimeout,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a mailbox is configured.
func (r *Reconciler) Enabled() bool { return r.mailbox != nil }

// PollInbox runs one scan. Overlapping invocations return a zero
// summary without touching the mailbox. A transport failure mid-run
// returns the partial summary accumulated so far; the guard and lease
// are always released.
func (r *Reconciler) PollInbox(ctx context.Context) (Summary, error) {
	if r.mailbox == nil {
		r.disabledOnce.Do(func() {
			r.logger.Info("reconciler disabled: no mailbox configured")
		})
		return Summary{}, nil
	}
	if !r.running.CompareAndSwap(false, true) {
		return Summary{}, nil
	}
	defer r.running.Store(false)

	acquired, err := r.lease.Acquire(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "reconciler lease unavailable", "error", err.Error())
		return Summary{}, nil
	}
	if !acquired {
		return Summary{}, nil
	}
	defer func() {
		if err := r.lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.logger.WarnContext(ctx, "reconciler lease release failed", "error", err.Error())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	summary, err := r.scan(ctx)
	r.observeRun(summary, err)
	return summary, err
}

func (r *Reconciler) scan(ctx context.Context) (Summary, error) {
	var summary Summary

	since := r.now().Add(-r.window)
	messages, err := r.mailbox.Fetch(ctx, since, r.maxMessages)
	if err != nil {
		return summary, err
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		m, ok := r.matchMessage(ctx, msg)
		if !ok {
			// Unmatched messages stay unseen for the next run.
			continue
		}

		excerpt := boundExcerpt(msg.Body)
		if err := r.requests.MarkVerified(ctx, m.req, m.role, excerpt); err != nil {
			r.logger.WarnContext(ctx, "mark verified failed",
				"message_id", msg.MessageID,
				"error", err.Error(),
			)
			continue
		}
		if err := r.mailbox.MarkSeen(ctx, msg.UID); err != nil {
			r.logger.WarnContext(ctx, "mark seen failed",
				"message_id", msg.MessageID,
				"error", err.Error(),
			)
		}

		summary.Matched++
		switch m.strategy {
		case StrategyPlus:
			summary.Breakdown.Plus++
		case StrategyThread:
			summary.Breakdown.Thread++
		case StrategyToken:
			summary.Breakdown.Token++
		}
		if r.metrics != nil {
			r.metrics.ReconcilerMatches.WithLabelValues(string(m.strategy)).Inc()
		}
		r.logger.InfoContext(ctx, "verification reply matched",
			"strategy", string(m.strategy),
			"role", m.role.String(),
			"application_id", m.req.ApplicationID.String(),
		)
	}
	return summary, nil
}

func (r *Reconciler) observeRun(summary Summary, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.metrics.ReconcilerRuns.WithLabelValues(outcome).Inc()
	r.metrics.ReconcilerScanned.Add(float64(summary.Scanned))
}

// boundExcerpt trims and caps the stored reply body. The excerpt is a
// human-readable trace, not the full message.
func boundExcerpt(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= excerptLimit {
		return body
	}
	return string(runes[:excerptLimit])
}
