package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/reconciler"
	"certflow/pkg/platform/secrets"
	"certflow/pkg/testutil"
)

type stubPoller struct {
	summary reconciler.Summary
	err     error
	calls   int
}

func (p *stubPoller) PollInbox(context.Context) (reconciler.Summary, error) {
	p.calls++
	return p.summary, p.err
}

const adminToken = "operator-token"

func newRouter(t *testing.T, poller *stubPoller) http.Handler {
	t.Helper()
	hash, err := secrets.Hash(adminToken)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(poller, logger, hash).Register(r)
	return r
}

func TestHandlePoll(t *testing.T) {
	poller := &stubPoller{summary: reconciler.Summary{
		Scanned: 12,
		Matched: 3,
		Breakdown: reconciler.Breakdown{
			Plus:   2,
			Thread: 1,
		},
	}}
	router := newRouter(t, poller)

	req := testutil.NewRequest(t, http.MethodPost, "/admin/reconciler/poll")
	req.Header.Set("X-Admin-Token", adminToken)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, 1, poller.calls)
	testutil.AssertJSONContains(t, rr, "scanned", float64(12))
	testutil.AssertJSONContains(t, rr, "matched", float64(3))
}

func TestHandlePoll_PartialRunReportsAborted(t *testing.T) {
	poller := &stubPoller{
		summary: reconciler.Summary{Scanned: 4, Matched: 1},
		err:     errors.New("imap connection reset"),
	}
	router := newRouter(t, poller)

	req := testutil.NewRequest(t, http.MethodPost, "/admin/reconciler/poll")
	req.Header.Set("X-Admin-Token", adminToken)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "aborted", true)
	testutil.AssertJSONContains(t, rr, "scanned", float64(4))
}

func TestHandlePoll_AuthGuard(t *testing.T) {
	poller := &stubPoller{}
	router := newRouter(t, poller)

	t.Run("missing token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/admin/reconciler/poll"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		assert.Zero(t, poller.calls)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/admin/reconciler/poll")
		req.Header.Set("X-Admin-Token", "not-the-token")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		assert.Zero(t, poller.calls)
	})

	t.Run("unconfigured hash hides the endpoint", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		r := chi.NewRouter()
		New(poller, logger, "").Register(r)

		req := testutil.NewRequest(t, http.MethodPost, "/admin/reconciler/poll")
		req.Header.Set("X-Admin-Token", adminToken)
		rr := testutil.DoRequest(r, req)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
		assert.Zero(t, poller.calls)
	})
}
