// Package handler exposes the progress read model over HTTP. Responses
// are role-scoped: steps that only concern assessors are filtered out
// of student-facing views.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certflow/internal/platform/metrics"
	"certflow/internal/platform/middleware"
	"certflow/internal/progress"
	"certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	"certflow/pkg/platform/httputil"
)

// Service computes the progress read model.
type Service interface {
	Compute(ctx context.Context, appID domain.ApplicationID) (progress.Progress, error)
}

type Handler struct {
	logger       *slog.Logger
	progress     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(progress Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		progress:     progress,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register adds the progress routes to the parent router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Latency(h.metrics, "/applications/{id}/progress"))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/applications/{id}/progress", h.handleGetProgress)
	})
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	appID, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application id"))
		return
	}

	result, err := h.progress.Compute(ctx, appID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to compute progress",
			"request_id", requestID,
			"application_id", appID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to compute progress"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, filterForRole(result, middleware.GetRole(ctx)))
}

// filterForRole hides assessor-facing form steps from student views.
// Step numbers keep their pipeline positions so currentStep stays
// meaningful across roles.
func filterForRole(p progress.Progress, role string) progress.Progress {
	if role != middleware.RoleStudent {
		return p
	}
	visible := make([]progress.StepView, 0, len(p.Steps))
	for _, step := range p.Steps {
		if domain.FilledBy(step.Metadata["filledBy"]).AssessorFacing() {
			continue
		}
		visible = append(visible, step)
	}
	p.Steps = visible
	return p
}
