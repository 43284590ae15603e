package progress

import (
	"strconv"

	"certflow/internal/certification"
	"certflow/internal/forms"
	"certflow/pkg/domain"
)

// Inputs is the snapshot of dependent records a single computation reads.
// All fields must come from the same load so concurrent recomputations
// converge on a consistent result.
type Inputs struct {
	FullyPaid           bool
	Submissions         map[domain.FormTemplateID]forms.Submission
	ThirdPartyCompleted map[domain.FormTemplateID]bool
	DocumentCount       int
	ImageCount          int
	VideoCount          int
	OverallStatus       domain.OverallStatus
	HasCertificate      bool
}

// Engine builds the step list and derives current step and overall
// status from it. It holds no state and performs no I/O.
type Engine struct{}

func NewEngine() Engine { return Engine{} }

// BuildSteps assembles the pipeline in fixed order: payment, the
// certification's deduplicated form slots by stage number, document
// upload, evidence upload, assessment when any slot is assessable, and
// certificate last.
func (Engine) BuildSteps(cert certification.Certification, in Inputs) []Step {
	steps := []Step{{
		Type:       domain.StepPayment,
		Title:      "Payment",
		IsRequired: true,
		Completed:  in.FullyPaid,
	}}

	for _, slot := range cert.DedupedSlots() {
		steps = append(steps, Step{
			Type:       domain.StepForm,
			Title:      slot.Title,
			TemplateID: slot.TemplateID,
			FilledBy:   slot.FilledBy,
			IsRequired: slot.IsRequired,
			Completed:  formComplete(slot, in),
			Metadata: map[string]string{
				"templateId": slot.TemplateID.String(),
				"filledBy":   slot.FilledBy.String(),
			},
		})
	}

	steps = append(steps,
		Step{
			Type:       domain.StepDocumentUpload,
			Title:      "Document Upload",
			IsRequired: true,
			Completed:  in.DocumentCount > 0,
			Metadata:   map[string]string{"documents": strconv.Itoa(in.DocumentCount)},
		},
		Step{
			Type:       domain.StepEvidenceUpload,
			Title:      "Evidence Upload",
			IsRequired: true,
			Completed:  in.ImageCount+in.VideoCount > 0,
			Metadata: map[string]string{
				"images": strconv.Itoa(in.ImageCount),
				"videos": strconv.Itoa(in.VideoCount),
			},
		},
	)

	if cert.HasAssessableForms() {
		steps = append(steps, Step{
			Type:       domain.StepAssessment,
			Title:      "Assessment",
			IsRequired: true,
			Completed:  in.OverallStatus.ReachedAssessment(),
		})
	}

	steps = append(steps, Step{
		Type:       domain.StepCertificate,
		Title:      "Certificate",
		IsRequired: true,
		Completed:  in.HasCertificate,
	})

	for i := range steps {
		steps[i].Number = i + 1
	}
	return steps
}

func formComplete(slot certification.FormSlot, in Inputs) bool {
	if slot.FilledBy == domain.FilledByThirdParty {
		return in.ThirdPartyCompleted[slot.TemplateID]
	}
	sub, ok := in.Submissions[slot.TemplateID]
	return ok && sub.Complete()
}

// CurrentStep is the number of the first incomplete step, or the last
// step's number when everything is complete.
func (Engine) CurrentStep(steps []Step) int {
	for _, step := range steps {
		if !step.Completed {
			return step.Number
		}
	}
	return steps[len(steps)-1].Number
}

// DeriveStatus reads the overall status off the computed step list. It
// never re-evaluates the underlying records, so status and steps cannot
// drift apart.
func (Engine) DeriveStatus(steps []Step) domain.OverallStatus {
	allComplete := true
	var paymentDone, formsDone, uploadsDone = true, true, true
	var assessmentPresent, assessmentDone bool
	for _, step := range steps {
		if !step.Completed {
			allComplete = false
		}
		switch step.Type {
		case domain.StepPayment:
			paymentDone = step.Completed
		case domain.StepForm:
			formsDone = formsDone && step.Completed
		case domain.StepDocumentUpload, domain.StepEvidenceUpload:
			uploadsDone = uploadsDone && step.Completed
		case domain.StepAssessment:
			assessmentPresent = true
			assessmentDone = step.Completed
		}
	}

	switch {
	case allComplete:
		return domain.StatusCompleted
	case !paymentDone:
		return domain.StatusPaymentPending
	case !formsDone:
		return domain.StatusInProgress
	case !uploadsDone:
		return domain.StatusInProgress
	case assessmentPresent && !assessmentDone:
		return domain.StatusAssessmentPending
	default:
		return domain.StatusAssessmentCompleted
	}
}
