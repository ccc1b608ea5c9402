package xrayconf

import (
	"errors"
	"fmt"
)

// ErrMissingField is returned when a profile lacks a field the outbound needs.
var ErrMissingField = errors.New("required field is missing")

// GenerationError reports a profile that cannot be turned into a config.
// The candidate is marked dead; the batch continues.
type GenerationError struct {
	// ProfileID is the address:port of the profile, possibly empty.
	ProfileID string

	// Field is the offending profile field, if one is known.
	Field string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("generate config for %q: %s: %v", e.ProfileID, e.Field, e.Err)
	}
	return fmt.Sprintf("generate config for %q: %v", e.ProfileID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error { return e.Err }
