package domain

import dErrors "certflow/pkg/domain-errors"

// FilledBy identifies which role is responsible for completing a form slot.
// Invariant: the value must be one of the supported roles; the progress
// engine switches exhaustively on it to pick the completion predicate.
//
// Usage: construct via ParseFilledBy at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type FilledBy string

const (
	FilledByUser       FilledBy = "user"
	FilledByAssessor   FilledBy = "assessor"
	FilledByThirdParty FilledBy = "third-party"
	FilledByMapping    FilledBy = "mapping"
)

// validFilledBy is the single source of truth for valid filler roles.
var validFilledBy = map[FilledBy]bool{
	FilledByUser:       true,
	FilledByAssessor:   true,
	FilledByThirdParty: true,
	FilledByMapping:    true,
}

// ParseFilledBy constructs a FilledBy from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseFilledBy(s string) (FilledBy, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "filled_by cannot be empty")
	}
	f := FilledBy(s)
	if !f.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid filled_by")
	}
	return f, nil
}

// IsValid checks if the role is one of the supported enum values.
func (f FilledBy) IsValid() bool {
	return validFilledBy[f]
}

// AssessorFacing reports whether forms for this role are hidden from
// student-facing progress summaries.
func (f FilledBy) AssessorFacing() bool {
	return f == FilledByAssessor || f == FilledByMapping
}

func (f FilledBy) String() string {
	return string(f)
}
