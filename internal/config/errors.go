package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while users still get a readable message.
var (
	// ErrNoTarget is returned when no target venue name or URL is given.
	ErrNoTarget = errors.New("no target specified: provide a venue name or review listing URL")

	// ErrInvalidPurpose is returned when the purpose is not one of
	// research, learning or academic.
	ErrInvalidPurpose = errors.New("invalid purpose: must be research, learning or academic")

	// ErrInvalidPlatform is returned when the platform is unknown.
	ErrInvalidPlatform = errors.New("invalid platform")

	// ErrInvalidRateLimit is returned when a per-minute, per-hour or per-day
	// cap is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: caps must be non-negative")

	// ErrInvalidMinDelay is returned when the minimum delay is negative.
	ErrInvalidMinDelay = errors.New("invalid min delay: must be non-negative")

	// ErrInvalidMaxPages is returned when max pages is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidMaxRecords is returned when the total record cap is not positive.
	ErrInvalidMaxRecords = errors.New("invalid max records: must be positive")

	// ErrInvalidPerPageCap is returned when the per-page record cap is not positive.
	ErrInvalidPerPageCap = errors.New("invalid per-page record cap: must be positive")

	// ErrInvalidTimeRange is returned when the time range in months is not positive.
	ErrInvalidTimeRange = errors.New("invalid time range: months must be positive")

	// ErrInvalidRetention is returned when the retention period is not positive.
	ErrInvalidRetention = errors.New("invalid retention: days must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConfigNotFound is returned when an explicitly given configuration
	// file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
