package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoBinary is returned when the proxy core binary name is empty.
	ErrNoBinary = errors.New("no proxy binary configured")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when any timeout or grace period is not
	// positive, the connect timeout is not shorter than the probe timeout, or
	// the task timeout leaves no room for startup and probing.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidMaxBytes is returned when the subscription size cap is not positive.
	ErrInvalidMaxBytes = errors.New("invalid fetch size limit: must be positive")

	// ErrPortOverlap is returned when the test port ranges overlap each other,
	// contain a production port or leave 1-65535.
	ErrPortOverlap = errors.New("invalid port layout")

	// ErrInvalidProbeURL is returned when the beacon URL is not absolute http(s).
	ErrInvalidProbeURL = errors.New("invalid probe url: must be an absolute http or https url")

	// ErrInvalidExpectedStatus is returned when the beacon status is not an HTTP status code.
	ErrInvalidExpectedStatus = errors.New("invalid expected status: must be 100-599")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
