// Package handler exposes the manual poll trigger for operators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certflow/internal/platform/middleware"
	"certflow/internal/reconciler"
	"certflow/pkg/platform/httputil"
)

// Poller runs one inbox scan.
type Poller interface {
	PollInbox(ctx context.Context) (reconciler.Summary, error)
}

type Handler struct {
	logger         *slog.Logger
	poller         Poller
	adminTokenHash string
}

func New(poller Poller, logger *slog.Logger, adminTokenHash string) *Handler {
	return &Handler{logger: logger, poller: poller, adminTokenHash: adminTokenHash}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(3 * time.Minute))
		r.Use(middleware.RequireAdminToken(h.adminTokenHash, h.logger))
		r.Post("/admin/reconciler/poll", h.handlePoll)
	})
}

type pollResponse struct {
	reconciler.Summary
	Aborted bool `json:"aborted,omitempty"`
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.poller.PollInbox(ctx)
	if err != nil {
		// A transport failure mid-run still yields the partial summary,
		// which the operator wants to see.
		h.logger.WarnContext(ctx, "manual inbox poll aborted",
			"request_id", middleware.GetRequestID(ctx),
			"scanned", summary.Scanned,
			"matched", summary.Matched,
			"error", err.Error(),
		)
		httputil.WriteJSON(w, http.StatusOK, pollResponse{Summary: summary, Aborted: true})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pollResponse{Summary: summary})
}
