package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/thirdparty"
	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

type fakeMailbox struct {
	mu         sync.Mutex
	messages   []Message
	fetchErr   error
	fetchDelay time.Duration
	fetches    int
	seen       []uint32
}

func (f *fakeMailbox) Fetch(ctx context.Context, _ time.Time, limit int) ([]Message, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetchDelay > 0 {
		select {
		case <-time.After(f.fetchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.messages) > limit {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeMailbox) Close() error { return nil }

func (f *fakeMailbox) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type verifiedCall struct {
	role    domain.PartyRole
	excerpt string
}

type fakeRequests struct {
	byToken     map[string]domain.PartyRole
	byMessageID map[string]domain.PartyRole
	verified    []verifiedCall
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{
		byToken:     make(map[string]domain.PartyRole),
		byMessageID: make(map[string]domain.PartyRole),
	}
}

func (f *fakeRequests) FindByToken(_ context.Context, token string) (*thirdparty.Request, domain.PartyRole, error) {
	if role, ok := f.byToken[token]; ok {
		return &thirdparty.Request{ID: domain.RequestID(uuid.New())}, role, nil
	}
	return nil, "", sentinel.ErrNotFound
}

func (f *fakeRequests) FindByOutboundMessageID(_ context.Context, messageID string) (*thirdparty.Request, domain.PartyRole, error) {
	if role, ok := f.byMessageID[messageID]; ok {
		return &thirdparty.Request{ID: domain.RequestID(uuid.New())}, role, nil
	}
	return nil, "", sentinel.ErrNotFound
}

func (f *fakeRequests) MarkVerified(_ context.Context, _ *thirdparty.Request, role domain.PartyRole, excerpt string) error {
	f.verified = append(f.verified, verifiedCall{role: role, excerpt: excerpt})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testToken = "aBcDeFgHiJkLmNoPqRsTuVwXyZ012345678901234-_"

func TestPollInbox_MatcherPriority(t *testing.T) {
	requests := newFakeRequests()
	requests.byToken[testToken] = domain.RoleEmployer
	requests.byMessageID["<out-1@certflow.example>"] = domain.RoleReference

	// Both signals present: the plus address must win.
	mailbox := &fakeMailbox{messages: []Message{{
		UID:       7,
		To:        []string{"requests+tpr-" + testToken + "@certflow.example"},
		InReplyTo: "<out-1@certflow.example>",
		Body:      "Happy to confirm.",
	}}}

	r := New(mailbox, requests, WithLogger(testLogger()))
	summary, err := r.PollInbox(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, Breakdown{Plus: 1}, summary.Breakdown)
	require.Len(t, requests.verified, 1)
	assert.Equal(t, domain.RoleEmployer, requests.verified[0].role)
	assert.Equal(t, []uint32{7}, mailbox.seen)
}

func TestPollInbox_ThreadAndTokenFallbacks(t *testing.T) {
	requests := newFakeRequests()
	requests.byToken[testToken] = domain.RoleCombined
	requests.byMessageID["<out-2@certflow.example>"] = domain.RoleReference

	mailbox := &fakeMailbox{messages: []Message{
		{UID: 1, References: []string{"<unrelated@x>", "<out-2@certflow.example>"}, Body: "re: your request"},
		{UID: 2, Subject: "verification", Body: "As requested, reference tpr-" + testToken + " confirmed."},
		{UID: 3, Subject: "newsletter", Body: "nothing relevant"},
	}}

	r := New(mailbox, requests, WithLogger(testLogger()))
	summary, err := r.PollInbox(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, Breakdown{Thread: 1, Token: 1}, summary.Breakdown)
	assert.ElementsMatch(t, []uint32{1, 2}, mailbox.seen, "unmatched messages stay unseen")
}

func TestPollInbox_ReentrancyGuard(t *testing.T) {
	requests := newFakeRequests()
	mailbox := &fakeMailbox{fetchDelay: 200 * time.Millisecond}
	r := New(mailbox, requests, WithLogger(testLogger()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = r.PollInbox(context.Background())
	}()

	// Give the first run time to take the guard.
	time.Sleep(50 * time.Millisecond)
	summary, err := r.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Equal(t, 1, mailbox.fetchCount(), "overlapping run never touches the mailbox")
	wg.Wait()
}

func TestPollInbox_TransportFailureReleasesGuard(t *testing.T) {
	requests := newFakeRequests()
	mailbox := &fakeMailbox{fetchErr: errors.New("connection reset")}
	r := New(mailbox, requests, WithLogger(testLogger()))

	summary, err := r.PollInbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, Summary{}, summary)

	// The guard must be free for the next run.
	mailbox.fetchErr = nil
	_, err = r.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, mailbox.fetchCount())
}

func TestPollInbox_DisabledWithoutMailbox(t *testing.T) {
	r := New(nil, newFakeRequests(), WithLogger(testLogger()))
	summary, err := r.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.False(t, r.Enabled())
}

func TestPollInbox_MessageCap(t *testing.T) {
	requests := newFakeRequests()
	var msgs []Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, Message{UID: uint32(i + 1), Body: "hello"})
	}
	mailbox := &fakeMailbox{messages: msgs}

	r := New(mailbox, requests, WithLogger(testLogger()), WithMaxMessages(4))
	summary, err := r.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Scanned)
}

func TestPollInbox_ExcerptBounded(t *testing.T) {
	requests := newFakeRequests()
	requests.byToken[testToken] = domain.RoleEmployer
	mailbox := &fakeMailbox{messages: []Message{{
		UID:  1,
		To:   []string{"requests+tpr-" + testToken + "@certflow.example"},
		Body: strings.Repeat("ü", 2000),
	}}}

	r := New(mailbox, requests, WithLogger(testLogger()))
	_, err := r.PollInbox(context.Background())
	require.NoError(t, err)

	require.Len(t, requests.verified, 1)
	assert.Equal(t, 512, len([]rune(requests.verified[0].excerpt)))
}
