package progress

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certflow/internal/application"
	"certflow/internal/certification"
	"certflow/internal/documents"
	"certflow/internal/forms"
	"certflow/internal/payments"
	"certflow/internal/platform/metrics"
	"certflow/pkg/domain"
	dErrors "certflow/pkg/domain-errors"
	"certflow/pkg/platform/events"
	"certflow/pkg/platform/sentinel"
)

// ThirdPartyReader reports, per form template, whether the third-party
// verification request for an application is fully completed.
type ThirdPartyReader interface {
	CompletionByApplication(ctx context.Context, appID domain.ApplicationID) (map[domain.FormTemplateID]bool, error)
}

// Service loads every dependent record in one invocation, runs the
// engine, and persists the final write.
type Service struct {
	engine     Engine
	apps       application.Store
	certs      certification.Reader
	subs       forms.Store
	pay        payments.Reader
	docs       documents.Reader
	thirdParty ThirdPartyReader
	eventSink  chan<- events.Event
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventSink(sink chan<- events.Event) Option {
	return func(s *Service) { s.eventSink = sink }
}

func NewService(
	apps application.Store,
	certs certification.Reader,
	subs forms.Store,
	pay payments.Reader,
	docs documents.Reader,
	thirdParty ThirdPartyReader,
	opts ...Option,
) *Service {
	s := &Service{
		engine:     NewEngine(),
		apps:       apps,
		certs:      certs,
		subs:       subs,
		pay:        pay,
		docs:       docs,
		thirdParty: thirdParty,
		logger:     slog.Default(),
		tracer:     otel.Tracer("certflow/progress"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute recomputes the application's progress and persists the
// resulting current step and overall status. Safe to call concurrently;
// two overlapping computations over the same snapshot write the same
// values.
func (s *Service) Compute(ctx context.Context, appID domain.ApplicationID) (Progress, error) {
	ctx, span := s.tracer.Start(ctx, "progress.compute",
		trace.WithAttributes(attribute.String("application_id", appID.String())))
	defer span.End()

	app, err := s.apps.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Progress{}, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return Progress{}, dErrors.Wrap(err, dErrors.CodeInternal, "load application")
	}

	in, cert, err := s.loadInputs(ctx, app)
	if err != nil {
		return Progress{}, err
	}

	steps := s.engine.BuildSteps(cert, in)
	currentStep := s.engine.CurrentStep(steps)
	status := s.engine.DeriveStatus(steps)

	if s.metrics != nil {
		s.metrics.ProgressComputations.Inc()
	}

	if currentStep != app.CurrentStep || status != app.OverallStatus {
		if err := s.apps.UpdateProgress(ctx, appID, currentStep, status); err != nil {
			return Progress{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist progress")
		}
	}
	if status != app.OverallStatus {
		if s.metrics != nil {
			s.metrics.StatusTransitions.WithLabelValues(status.String()).Inc()
		}
		s.emit(events.Event{
			ApplicationID: appID,
			Action:        events.ActionStatusChanged,
			Detail: map[string]string{
				"from": app.OverallStatus.String(),
				"to":   status.String(),
			},
		})
		s.logger.Info("application status changed",
			"application_id", appID.String(),
			"from", app.OverallStatus.String(),
			"to", status.String())
	}

	span.SetAttributes(
		attribute.Int("current_step", currentStep),
		attribute.String("overall_status", status.String()),
	)
	return buildProgress(steps, currentStep, status), nil
}

// loadInputs reads every dependent record within the current invocation.
// No field of Inputs may be read lazily later; a consistent snapshot is
// what makes concurrent recomputation safe.
func (s *Service) loadInputs(ctx context.Context, app application.Application) (Inputs, certification.Certification, error) {
	cert, err := s.certs.Get(ctx, app.CertificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Inputs{}, certification.Certification{}, dErrors.New(dErrors.CodeNotFound, "certification not found")
		}
		return Inputs{}, certification.Certification{}, dErrors.Wrap(err, dErrors.CodeInternal, "load certification")
	}

	paid, err := s.pay.IsFullyPaid(ctx, app.ID)
	if err != nil {
		return Inputs{}, certification.Certification{}, dErrors.Wrap(err, dErrors.CodeInternal, "read payment")
	}

	subs, err := s.subs.ListByApplication(ctx, app.ID)
	if err != nil {
		return Inputs{}, certification.Certification{}, dErrors.Wrap(err, dErrors.CodeInternal, "list submissions")
	}
	byTemplate := make(map[domain.FormTemplateID]forms.Submission, len(subs))
	for _, sub := range subs {
		byTemplate[sub.TemplateID] = sub
	}

	completed, err := s.thirdParty.CompletionByApplication(ctx, app.ID)
	if err != nil {
		return Inputs{}, certification.Certification{}, dErrors.Wrap(err, dErrors.CodeInternal, "read third-party completion")
	}

	counts, err := s.docs.Counts(ctx, app.ID)
	if err != nil {
		return Inputs{}, certification.Certification{}, dErrors.Wrap(err, dErrors.CodeInternal, "count uploads")
	}

	return Inputs{
		FullyPaid:           paid,
		Submissions:         byTemplate,
		ThirdPartyCompleted: completed,
		DocumentCount:       counts.Documents,
		ImageCount:          counts.Images,
		VideoCount:          counts.Videos,
		OverallStatus:       app.OverallStatus,
		HasCertificate:      app.HasCertificate(),
	}, cert, nil
}

func (s *Service) emit(event events.Event) {
	if s.eventSink == nil {
		return
	}
	select {
	case s.eventSink <- event:
	default:
		s.logger.Warn("event sink full, dropping event", "action", string(event.Action))
	}
}

func buildProgress(steps []Step, currentStep int, status domain.OverallStatus) Progress {
	views := make([]StepView, 0, len(steps))
	completed := 0
	for _, step := range steps {
		if step.Completed {
			completed++
		}
		views = append(views, StepView{
			StepNumber:  step.Number,
			Type:        step.Type.String(),
			Title:       step.Title,
			IsRequired:  step.IsRequired,
			IsCompleted: step.Completed,
			Status:      step.StepStatus(currentStep),
			Metadata:    step.Metadata,
		})
	}
	return Progress{
		CurrentStep:        currentStep,
		TotalSteps:         len(steps),
		Steps:              views,
		ProgressPercentage: completed * 100 / len(steps),
		OverallStatus:      status.String(),
	}
}
