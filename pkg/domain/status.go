package domain

import dErrors "certflow/pkg/domain-errors"

// SubmissionStatus is the lifecycle state of a form submission.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionAssessed  SubmissionStatus = "assessed"
)

var validSubmissionStatus = map[SubmissionStatus]bool{
	SubmissionDraft:     true,
	SubmissionSubmitted: true,
	SubmissionAssessed:  true,
}

func (s SubmissionStatus) IsValid() bool { return validSubmissionStatus[s] }
func (s SubmissionStatus) String() string { return string(s) }

// Complete reports whether the submission counts toward step completion.
// Drafts do not.
func (s SubmissionStatus) Complete() bool {
	return s == SubmissionSubmitted || s == SubmissionAssessed
}

// AssessmentOutcome is the assessor's verdict on a single submission.
type AssessmentOutcome string

const (
	AssessmentPending         AssessmentOutcome = "pending"
	AssessmentApproved        AssessmentOutcome = "approved"
	AssessmentRequiresChanges AssessmentOutcome = "requires_changes"
)

var validAssessmentOutcome = map[AssessmentOutcome]bool{
	AssessmentPending:         true,
	AssessmentApproved:        true,
	AssessmentRequiresChanges: true,
}

func (o AssessmentOutcome) IsValid() bool  { return validAssessmentOutcome[o] }
func (o AssessmentOutcome) String() string { return string(o) }

// OverallStatus is the application-level status derived by the progress
// engine. It is never set independently of the computed step list.
type OverallStatus string

const (
	StatusPaymentPending      OverallStatus = "payment_pending"
	StatusInProgress          OverallStatus = "in_progress"
	StatusAssessmentPending   OverallStatus = "assessment_pending"
	StatusAssessmentCompleted OverallStatus = "assessment_completed"
	StatusCompleted           OverallStatus = "completed"
)

var validOverallStatus = map[OverallStatus]bool{
	StatusPaymentPending:      true,
	StatusInProgress:          true,
	StatusAssessmentPending:   true,
	StatusAssessmentCompleted: true,
	StatusCompleted:           true,
}

// ParseOverallStatus constructs an OverallStatus from stored input.
func ParseOverallStatus(s string) (OverallStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status cannot be empty")
	}
	st := OverallStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

func (s OverallStatus) IsValid() bool  { return validOverallStatus[s] }
func (s OverallStatus) String() string { return string(s) }

// ReachedAssessment reports whether the application is at an
// assessment-completed-or-later state, which is what completes the assessment
// step.
func (s OverallStatus) ReachedAssessment() bool {
	return s == StatusAssessmentCompleted || s == StatusCompleted
}

// StepType identifies one unit of the fixed-shape pipeline.
type StepType string

const (
	StepPayment        StepType = "payment"
	StepForm           StepType = "form"
	StepDocumentUpload StepType = "document_upload"
	StepEvidenceUpload StepType = "evidence_upload"
	StepAssessment     StepType = "assessment"
	StepCertificate    StepType = "certificate"
)

func (t StepType) String() string { return string(t) }
