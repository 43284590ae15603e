package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and mailbox clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or token does not exist in store
// - ErrConflict: an active record already occupies the slot
// - ErrExpired: third-party request past its retention window
// - ErrInvalidState: record in wrong state for requested operation
// - ErrUnavailable: collaborator (mailbox, broker) temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
