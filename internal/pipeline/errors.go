package pipeline

import "errors"

var (
	// ErrEmptyTarget is returned when a request has no target.
	ErrEmptyTarget = errors.New("empty crawl target")

	// ErrNotReviewSource is returned when the requested platform does not
	// serve review listings.
	ErrNotReviewSource = errors.New("platform has no review listings")
)
