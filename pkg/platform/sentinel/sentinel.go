package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: no record with the requested id
//   - ErrUnavailable: storage or cache backend cannot be reached
//   - ErrCircuitOpen: writes are being shed after repeated store failures
//
// For validation errors (bad filters, malformed ids), use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrCircuitOpen = errors.New("circuit open")
)
