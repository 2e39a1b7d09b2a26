package redact

import "errors"

// Record-level rejection errors returned by Engine.Anonymize.
// Both are expected outcomes that callers count and drop.
var (
	// ErrSensitiveContentRejected is returned when content still matches a
	// sensitive pattern after scrubbing.
	ErrSensitiveContentRejected = errors.New("sensitive content rejected")

	// ErrContentTooShort is returned when scrubbed content is shorter than
	// the engine's minimum length.
	ErrContentTooShort = errors.New("content too short")
)
