package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The policy catalog, hook registry
// and flat writer return these (optionally wrapped) so the pipeline can
// translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: partner, hook, or target directory does not exist
// - ErrConflict: flat file already exists and overwriting is disabled
// - ErrUnavailable: a note hook did not answer in time or its circuit is open
//
// For field rejections use customer.Errors; for bad config use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
