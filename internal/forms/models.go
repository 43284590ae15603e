// Package forms holds per-application form submissions. One submission
// exists per (application, template, filler); resubmission after a
// requires_changes verdict retains the prior version.
package forms

import (
	"time"

	"certflow/pkg/domain"
)

// Submission is one filled form for an application.
type Submission struct {
	ID            domain.RequestID
	ApplicationID domain.ApplicationID
	TemplateID    domain.FormTemplateID
	FilledBy      domain.FilledBy
	Status        domain.SubmissionStatus
	Assessed      domain.AssessmentOutcome
	FormData      map[string]string
	Version       int
	SubmittedAt   time.Time
	UpdatedAt     time.Time
}

// Complete reports whether this submission satisfies its step's completion
// rule for non-third-party fillers.
func (s Submission) Complete() bool {
	return s.Status.Complete()
}
