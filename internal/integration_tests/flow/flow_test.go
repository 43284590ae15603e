// Package flow exercises the full application pipeline over real HTTP
// handlers: initiate a third-party request, submit both party forms
// through the public endpoints, and watch the progress read model move.
package flow

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/application"
	"certflow/internal/certification"
	"certflow/internal/documents"
	"certflow/internal/forms"
	jwttoken "certflow/internal/jwt_token"
	"certflow/internal/payments"
	"certflow/internal/platform/metrics"
	"certflow/internal/platform/middleware"
	"certflow/internal/progress"
	progresshandler "certflow/internal/progress/handler"
	"certflow/internal/thirdparty"
	thirdpartyhandler "certflow/internal/thirdparty/handler"
	httptransport "certflow/internal/transport/http"
	"certflow/pkg/domain"
	"certflow/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	tpStore thirdparty.Store
	bearer  string

	appID      domain.ApplicationID
	tpTemplate domain.FormTemplateID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(nil)

	certStore := certification.NewInMemoryStore()
	appStore := application.NewInMemoryStore()
	subStore := forms.NewInMemoryStore()
	payStore := payments.NewInMemoryStore()
	docStore := documents.NewInMemoryStore()
	tpStore := thirdparty.NewInMemoryStore()

	appID := domain.ApplicationID(uuid.New())
	certID := domain.CertificationID(uuid.New())
	studentID := domain.UserID(uuid.New())
	tpTemplate := domain.FormTemplateID(uuid.New())
	userTemplate := domain.FormTemplateID(uuid.New())

	require.NoError(t, certStore.Save(ctx, certification.Certification{
		ID:   certID,
		Name: "Site Supervisor",
		FormSlots: []certification.FormSlot{
			{TemplateID: userTemplate, Title: "Experience Record", StageNumber: 1, IsRequired: true, FilledBy: domain.FilledByUser},
			{TemplateID: tpTemplate, Title: "Employment Verification", StageNumber: 2, IsRequired: true, FilledBy: domain.FilledByThirdParty},
		},
	}))
	require.NoError(t, appStore.Save(ctx, application.Application{
		ID:              appID,
		StudentID:       studentID,
		CertificationID: certID,
		OverallStatus:   domain.StatusPaymentPending,
		CurrentStep:     1,
	}))
	require.NoError(t, payStore.Save(ctx, payments.Record{
		ApplicationID: appID,
		FullyPaid:     true,
	}))
	require.NoError(t, docStore.Save(ctx, appID, documents.Counts{Documents: 2, Images: 1}))
	require.NoError(t, subStore.Save(ctx, forms.Submission{
		ID:            domain.RequestID(uuid.New()),
		ApplicationID: appID,
		TemplateID:    userTemplate,
		FilledBy:      domain.FilledByUser,
		Status:        domain.SubmissionSubmitted,
		SubmittedAt:   time.Now(),
	}))

	jwtService := jwttoken.NewJWTService("integration-signing-key", "certflow")
	bearer, err := jwtService.GenerateAccessToken(uuid.UUID(studentID), middleware.RoleStudent, time.Hour)
	require.NoError(t, err)
	validator := jwttoken.NewJWTServiceAdapter(jwtService)

	tpService := thirdparty.NewService(
		tpStore, subStore,
		thirdparty.NewLogSender(logger, "certflow.local"),
		"http://localhost:8080", "verify@certflow.local",
		thirdparty.WithLogger(logger),
		thirdparty.WithMetrics(m),
	)
	progressService := progress.NewService(
		appStore, certStore, subStore, payStore, docStore, tpStore,
		progress.WithLogger(logger),
		progress.WithMetrics(m),
	)

	router := httptransport.NewRouter(
		progresshandler.New(progressService, logger, m, validator),
		thirdpartyhandler.New(tpService, logger, m, validator),
	)

	return &fixture{
		router:     router,
		tpStore:    tpStore,
		bearer:     bearer,
		appID:      appID,
		tpTemplate: tpTemplate,
	}
}

func (f *fixture) authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+f.bearer)
	return req
}

type progressView struct {
	CurrentStep        int    `json:"currentStep"`
	TotalSteps         int    `json:"totalSteps"`
	ProgressPercentage int    `json:"progressPercentage"`
	OverallStatus      string `json:"overallStatus"`
	Steps              []struct {
		StepNumber  int               `json:"stepNumber"`
		Type        string            `json:"type"`
		IsCompleted bool              `json:"isCompleted"`
		Status      string            `json:"status"`
		Metadata    map[string]string `json:"metadata"`
	} `json:"steps"`
}

func (f *fixture) getProgress(t *testing.T) *progressView {
	t.Helper()
	req := f.authed(testutil.NewRequest(t, http.MethodGet, "/applications/"+f.appID.String()+"/progress"))
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatusOK(t, rr)
	return testutil.UnmarshalResponse[progressView](t, rr)
}

func TestThirdPartyVerificationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view := f.getProgress(t)
	require.NotZero(t, view.TotalSteps)
	var tpStep int
	for _, step := range view.Steps {
		if step.Type == "form" && step.Metadata["filledBy"] == domain.FilledByThirdParty.String() {
			tpStep = step.StepNumber
			assert.False(t, step.IsCompleted)
		}
	}
	require.NotZero(t, tpStep, "pipeline must surface the third-party form step")
	assert.Equal(t, tpStep, view.CurrentStep, "third-party form is the first incomplete step")

	initiateURL := "/applications/" + f.appID.String() + "/forms/" + f.tpTemplate.String() + "/third-party"
	req := f.authed(testutil.NewJSONRequest(t, http.MethodPost, initiateURL, map[string]any{
		"employer":  map[string]string{"name": "Jane Manager", "email": "manager@example.com"},
		"reference": map[string]string{"name": "", "email": "referee@example.com"},
	}))
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, false, (*created)["sameEmail"])

	stored, err := f.tpStore.GetActive(ctx, f.appID, f.tpTemplate, time.Now())
	require.NoError(t, err)

	// Each party fills the public form reached through their emailed link.
	for i, token := range []string{stored.Employer.Token, stored.Reference.Token} {
		rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/thirdpartyform/"+token))
		testutil.AssertStatusOK(t, rr)

		rr = testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/thirdpartyform/"+token, map[string]any{
			"formData": map[string]string{"position": "Engineer", "confirmed": "yes"},
		}))
		testutil.AssertStatusOK(t, rr)
		done := testutil.UnmarshalResponse[map[string]bool](t, rr)
		assert.Equal(t, i == 1, (*done)["isFullyCompleted"])
	}

	view = f.getProgress(t)
	for _, step := range view.Steps {
		if step.StepNumber == tpStep {
			assert.True(t, step.IsCompleted, "third-party step completes when both parties submitted")
		}
	}
	assert.Greater(t, view.CurrentStep, tpStep)
}

func TestProgressRequiresAuth(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequest(t, http.MethodGet, "/applications/"+f.appID.String()+"/progress")
	rr := testutil.DoRequest(f.router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestPublicFormRejectsUnknownToken(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/thirdpartyform/not-a-real-token"))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
