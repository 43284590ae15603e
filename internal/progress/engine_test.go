package progress

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/certification"
	"certflow/internal/forms"
	"certflow/pkg/domain"
)

func certWithSlots(slots ...certification.FormSlot) certification.Certification {
	return certification.Certification{
		ID:        domain.CertificationID(uuid.New()),
		Name:      "Cert IV Plumbing",
		FormSlots: slots,
	}
}

func submittedForm(tmpl domain.FormTemplateID) forms.Submission {
	return forms.Submission{
		TemplateID: tmpl,
		Status:     domain.SubmissionSubmitted,
	}
}

func TestBuildSteps_Ordering(t *testing.T) {
	engine := NewEngine()
	a := domain.FormTemplateID(uuid.New())
	b := domain.FormTemplateID(uuid.New())
	cert := certWithSlots(
		certification.FormSlot{TemplateID: b, StageNumber: 2, Title: "Reference Check", FilledBy: domain.FilledByThirdParty},
		certification.FormSlot{TemplateID: a, StageNumber: 1, Title: "Enrolment", FilledBy: domain.FilledByUser},
	)

	steps := engine.BuildSteps(cert, Inputs{})

	require.Len(t, steps, 7)
	types := make([]domain.StepType, 0, len(steps))
	for i, step := range steps {
		assert.Equal(t, i+1, step.Number, "step numbers are contiguous and ascending")
		types = append(types, step.Type)
	}
	assert.Equal(t, []domain.StepType{
		domain.StepPayment,
		domain.StepForm,
		domain.StepForm,
		domain.StepDocumentUpload,
		domain.StepEvidenceUpload,
		domain.StepAssessment,
		domain.StepCertificate,
	}, types)

	assert.Equal(t, "Enrolment", steps[1].Title, "form steps sorted by stage number")
	assert.Equal(t, "Reference Check", steps[2].Title)
}

func TestBuildSteps_ZeroFormsSkipsToUploads(t *testing.T) {
	engine := NewEngine()
	steps := engine.BuildSteps(certWithSlots(), Inputs{FullyPaid: true})

	require.Len(t, steps, 4)
	assert.Equal(t, domain.StepPayment, steps[0].Type)
	assert.Equal(t, domain.StepDocumentUpload, steps[1].Type)
	assert.Equal(t, domain.StepEvidenceUpload, steps[2].Type)
	assert.Equal(t, domain.StepCertificate, steps[3].Type)
}

func TestBuildSteps_DuplicateSlotsCollapse(t *testing.T) {
	engine := NewEngine()
	tmpl := domain.FormTemplateID(uuid.New())
	cert := certWithSlots(
		certification.FormSlot{TemplateID: tmpl, StageNumber: 1, Title: "First", FilledBy: domain.FilledByUser},
		certification.FormSlot{TemplateID: tmpl, StageNumber: 3, Title: "Dup", FilledBy: domain.FilledByUser},
	)

	steps := engine.BuildSteps(cert, Inputs{})

	var formSteps []Step
	for _, step := range steps {
		if step.Type == domain.StepForm {
			formSteps = append(formSteps, step)
		}
	}
	require.Len(t, formSteps, 1)
	assert.Equal(t, "First", formSteps[0].Title)
}

func TestBuildSteps_CompletionPredicates(t *testing.T) {
	engine := NewEngine()
	userTmpl := domain.FormTemplateID(uuid.New())
	tpTmpl := domain.FormTemplateID(uuid.New())
	cert := certWithSlots(
		certification.FormSlot{TemplateID: userTmpl, StageNumber: 1, FilledBy: domain.FilledByUser},
		certification.FormSlot{TemplateID: tpTmpl, StageNumber: 2, FilledBy: domain.FilledByThirdParty},
	)

	t.Run("user form completes on submission, third-party on request completion", func(t *testing.T) {
		steps := engine.BuildSteps(cert, Inputs{
			Submissions:         map[domain.FormTemplateID]forms.Submission{userTmpl: submittedForm(userTmpl)},
			ThirdPartyCompleted: map[domain.FormTemplateID]bool{tpTmpl: true},
		})
		assert.True(t, steps[1].Completed)
		assert.True(t, steps[2].Completed)
	})

	t.Run("draft submission does not complete the step", func(t *testing.T) {
		draft := submittedForm(userTmpl)
		draft.Status = domain.SubmissionDraft
		steps := engine.BuildSteps(cert, Inputs{
			Submissions: map[domain.FormTemplateID]forms.Submission{userTmpl: draft},
		})
		assert.False(t, steps[1].Completed)
	})

	t.Run("third-party form ignores direct submissions", func(t *testing.T) {
		steps := engine.BuildSteps(cert, Inputs{
			Submissions: map[domain.FormTemplateID]forms.Submission{tpTmpl: submittedForm(tpTmpl)},
		})
		assert.False(t, steps[2].Completed)
	})

	t.Run("evidence completes on any image or video", func(t *testing.T) {
		steps := engine.BuildSteps(cert, Inputs{VideoCount: 1})
		for _, step := range steps {
			if step.Type == domain.StepEvidenceUpload {
				assert.True(t, step.Completed)
			}
		}
	})
}

func TestBuildSteps_Determinism(t *testing.T) {
	engine := NewEngine()
	tmpl := domain.FormTemplateID(uuid.New())
	cert := certWithSlots(
		certification.FormSlot{TemplateID: tmpl, StageNumber: 1, FilledBy: domain.FilledByAssessor},
	)
	in := Inputs{
		FullyPaid:     true,
		DocumentCount: 2,
		ImageCount:    1,
		OverallStatus: domain.StatusInProgress,
	}

	first := engine.BuildSteps(cert, in)
	second := engine.BuildSteps(cert, in)
	assert.Equal(t, first, second)
	assert.Equal(t, engine.CurrentStep(first), engine.CurrentStep(second))
	assert.Equal(t, engine.DeriveStatus(first), engine.DeriveStatus(second))
}

func TestCurrentStep(t *testing.T) {
	engine := NewEngine()

	t.Run("first incomplete step", func(t *testing.T) {
		steps := []Step{
			{Number: 1, Completed: true},
			{Number: 2, Completed: false},
			{Number: 3, Completed: false},
		}
		assert.Equal(t, 2, engine.CurrentStep(steps))
	})

	t.Run("all complete lands on the last step", func(t *testing.T) {
		steps := []Step{
			{Number: 1, Completed: true},
			{Number: 2, Completed: true},
		}
		assert.Equal(t, 2, engine.CurrentStep(steps))
	})
}

func TestDeriveStatus(t *testing.T) {
	engine := NewEngine()
	build := func(paid, formsDone, uploadsDone, assessment, assessmentDone, certDone bool) []Step {
		steps := []Step{
			{Number: 1, Type: domain.StepPayment, Completed: paid},
			{Number: 2, Type: domain.StepForm, Completed: formsDone},
			{Number: 3, Type: domain.StepDocumentUpload, Completed: uploadsDone},
			{Number: 4, Type: domain.StepEvidenceUpload, Completed: uploadsDone},
		}
		if assessment {
			steps = append(steps, Step{Number: 5, Type: domain.StepAssessment, Completed: assessmentDone})
		}
		steps = append(steps, Step{Number: len(steps) + 1, Type: domain.StepCertificate, Completed: certDone})
		return steps
	}

	tests := []struct {
		name  string
		steps []Step
		want  domain.OverallStatus
	}{
		{"unpaid", build(false, false, false, true, false, false), domain.StatusPaymentPending},
		{"paid, forms outstanding", build(true, false, false, true, false, false), domain.StatusInProgress},
		{"forms done, uploads outstanding", build(true, true, false, true, false, false), domain.StatusInProgress},
		{"awaiting assessment", build(true, true, true, true, false, false), domain.StatusAssessmentPending},
		{"assessed, certificate outstanding", build(true, true, true, true, true, false), domain.StatusAssessmentCompleted},
		{"no assessment step, certificate outstanding", build(true, true, true, false, false, false), domain.StatusAssessmentCompleted},
		{"everything complete", build(true, true, true, true, true, true), domain.StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.DeriveStatus(tt.steps))
		})
	}
}
