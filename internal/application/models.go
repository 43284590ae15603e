// Package application holds the aggregate root a certification applicant
// progresses through. Applications are mutated only by recomputation or
// direct administrative actions; they are archived, never deleted.
package application

import (
	"time"

	"certflow/pkg/domain"
)

// Application is the aggregate root referencing every record the progress
// engine reads.
type Application struct {
	ID              domain.ApplicationID
	StudentID       domain.UserID
	CertificationID domain.CertificationID
	AssessorID      domain.UserID

	OverallStatus domain.OverallStatus
	CurrentStep   int

	// CertificateURL points at the final certificate artifact; empty until
	// one is attached.
	CertificateURL string

	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCertificate reports whether a final certificate artifact is attached.
func (a Application) HasCertificate() bool {
	return a.CertificateURL != ""
}
