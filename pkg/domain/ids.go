// Package domain holds the shared identifier types and closed enums of the
// certification platform. Construct IDs via the Parse helpers at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "certflow/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep an application ID from being
// passed where a template ID is expected.
type (
	ApplicationID   uuid.UUID
	CertificationID uuid.UUID
	FormTemplateID  uuid.UUID
	RequestID       uuid.UUID
	UserID          uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func ParseCertificationID(s string) (CertificationID, error) {
	u, err := parseUUID(s, "certification id")
	return CertificationID(u), err
}

func ParseFormTemplateID(s string) (FormTemplateID, error) {
	u, err := parseUUID(s, "form template id")
	return FormTemplateID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func (id ApplicationID) String() string   { return uuid.UUID(id).String() }
func (id CertificationID) String() string { return uuid.UUID(id).String() }
func (id FormTemplateID) String() string  { return uuid.UUID(id).String() }
func (id RequestID) String() string       { return uuid.UUID(id).String() }
func (id UserID) String() string          { return uuid.UUID(id).String() }

func (id ApplicationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CertificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id FormTemplateID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
