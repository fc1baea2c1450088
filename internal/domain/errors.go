package domain

import "errors"

var (
	ErrModelNotFound          = errors.New("no trained model for segment")
	ErrInvalidSegment         = errors.New("unknown segment")
	ErrInvalidDateFormat      = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrInvalidTimeFormat      = errors.New("invalid time format, expected HH:MM")
	ErrInvalidVehicleClass    = errors.New("invalid vehicle class")
	ErrNoAdmissibleCandidates = errors.New("no admissible candidates")
	ErrEmptyRouteDefinition   = errors.New("route has no segments")
	ErrInvalidFactor          = errors.New("invalid external factor")
	ErrInvalidRange           = errors.New("invalid time range")
)

// IsClientError reports whether err was caused by the caller's input rather than the system
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidSegment,
		ErrInvalidDateFormat,
		ErrInvalidTimeFormat,
		ErrInvalidVehicleClass,
		ErrNoAdmissibleCandidates,
		ErrEmptyRouteDefinition,
		ErrInvalidFactor,
		ErrInvalidRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
