package domain

import "errors"

// Run-level failures. Only ErrGeometry and ErrCatalogUnavailable abort a run.
var (
	ErrGeometry           = errors.New("geometry error")
	ErrCatalogUnavailable = errors.New("station catalog unavailable")
	ErrEmptyFilterResult  = errors.New("no stations matched the filter")
)

// Station-level failures. These are recorded on a StationOutcome and never
// abort a run.
var (
	ErrFetchFailure   = errors.New("fetch failed")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrNoValidData    = errors.New("no valid data")
)

// Classify maps a station-level error to its outcome status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrNoValidData):
		return StatusNoData
	default:
		return StatusFailed
	}
}
