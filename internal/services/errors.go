package services

import "fmt"

// ValidationError marks malformed or out-of-range input. Never retried; the
// API layer maps it to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GeographicBoundsError marks coordinates outside the configured service
// region. Raised before any provider is called; maps to a 422.
type GeographicBoundsError struct {
	Region string
	Lat    float64
	Lng    float64
}

func (e *GeographicBoundsError) Error() string {
	return fmt.Sprintf("coordinates (%f, %f) are outside the %s service region", e.Lat, e.Lng, e.Region)
}
