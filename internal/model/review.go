package model

import "time"

// TimeBucket is a coarse generalization of when a review was written.
// Exact timestamps are never persisted.
type TimeBucket string

// Time buckets from most to least recent.
const (
	// TimeBucketTodayRange covers today and the previous two days.
	TimeBucketTodayRange TimeBucket = "today_range"
	// TimeBucketWithinWeek covers the last seven days.
	TimeBucketWithinWeek TimeBucket = "within_week"
	// TimeBucketWithinMonth covers the last thirty days.
	TimeBucketWithinMonth TimeBucket = "within_month"
	// TimeBucketOlder is anything older than thirty days.
	TimeBucketOlder TimeBucket = "older"
	// TimeBucketUnknown is used when the time text could not be parsed.
	TimeBucketUnknown TimeBucket = "unknown"
)

// String returns the string representation of the TimeBucket.
func (b TimeBucket) String() string {
	if b == "" {
		return string(TimeBucketUnknown)
	}
	return string(b)
}

// Label returns the human-readable label used in reports.
func (b TimeBucket) Label() string {
	switch b {
	case TimeBucketTodayRange:
		return "最近几天"
	case TimeBucketWithinWeek:
		return "一周内"
	case TimeBucketWithinMonth:
		return "一个月内"
	case TimeBucketOlder:
		return "较早"
	default:
		return "时间不详"
	}
}

// RawReview is a review as produced by page parsing.
// It is transient and must never be persisted.
type RawReview struct {
	// Content is the review body text.
	Content string `json:"content"`

	// Rating is the star rating on a 0..5 scale, nil when absent.
	Rating *float64 `json:"rating,omitempty"`

	// RawTime is the free-text time expression shown on the page.
	RawTime string `json:"raw_time"`

	// RawUserID is the reviewer's name or identifier as shown on the page.
	RawUserID string `json:"raw_user_id,omitempty"`

	// Tags are free-form labels attached to the review.
	Tags []string `json:"tags,omitempty"`
}

// AnonymizedReview is the unit persisted downstream.
// It is immutable once created and never contains the raw user identifier.
type AnonymizedReview struct {
	// Content is the scrubbed review text.
	Content string `json:"content" yaml:"content"`

	// Rating is the star rating on a 0..5 scale, 0 when absent.
	Rating float64 `json:"rating" yaml:"rating"`

	// TimeBucket is the generalized time of the review.
	TimeBucket TimeBucket `json:"time_bucket" yaml:"time_bucket"`

	// UserHash is an 8 hex character token derived from the reviewer
	// identifier, empty when the page had no identifier.
	UserHash string `json:"user_hash,omitempty" yaml:"user_hash,omitempty"`

	// Tags are the review tags with personal-context tags removed.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// ContentHash is the dedup key derived from Content.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// ProcessedAt is when the record was anonymized.
	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`

	// PrivacyProtected is always true for records produced by the engine.
	PrivacyProtected bool `json:"privacy_protected" yaml:"privacy_protected"`
}

// CandidateEntity is a search result returned by an entity resolver.
type CandidateEntity struct {
	// ID is the platform-specific identifier, if known.
	ID string `json:"id,omitempty"`

	// Name is the display name of the venue.
	Name string `json:"name"`

	// Address is the venue address, if shown.
	Address string `json:"address,omitempty"`

	// URL is the review listing URL for the venue.
	URL string `json:"url"`
}
