package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: blob or record does not exist in the store
//   - ErrConflict: a write lost a race it cannot resolve
//   - ErrUnavailable: backing store temporarily unreachable
//   - ErrInvalidState: the store rejected a value its constraints forbid
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
