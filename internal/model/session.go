package model

import "time"

// SessionStatus is the lifecycle state of a crawl session.
type SessionStatus string

// Session statuses. Completed and aborted are terminal.
const (
	// SessionRunning means the session is still collecting.
	SessionRunning SessionStatus = "running"
	// SessionCompleted means the session stopped on a normal condition.
	SessionCompleted SessionStatus = "completed"
	// SessionAborted means a policy denial, resolver failure or cancellation
	// stopped the session early.
	SessionAborted SessionStatus = "aborted"
)

// String returns the string representation of the SessionStatus.
func (s SessionStatus) String() string {
	if s == "" {
		return unknownStr
	}
	return string(s)
}

// IsTerminal reports whether the status can no longer change.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// Reason strings recorded on a finished session.
const (
	ReasonRobotsExcluded   = "robots_excluded"
	ReasonRateLimited      = "rate_limited"
	ReasonNoMatchingEntity = "no_matching_entity"
	ReasonResolverFailed   = "resolver_failed"
	ReasonCancelled        = "cancelled"
	ReasonMaxRecords       = "max_records_reached"
	ReasonMaxPages         = "max_pages_reached"
	ReasonTimeCutoff       = "time_cutoff_reached"
	ReasonNoMorePages      = "no_more_pages"
	ReasonInvalidRequest   = "invalid_request"
	ReasonInternalError    = "internal_error"
)

// SessionState tracks the progress of one crawl session.
// It is mutated only by the session orchestrator and the pagination crawler,
// and is frozen once Status is terminal.
type SessionState struct {
	// SessionID uniquely identifies the session.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Target is the entity name or URL the session was started for.
	Target string `json:"target" yaml:"target"`

	// TargetURL is the resolved review listing URL.
	TargetURL string `json:"target_url,omitempty" yaml:"target_url,omitempty"`

	// StartTime is when the session began.
	StartTime time.Time `json:"start_time" yaml:"start_time"`

	// EndTime is when the session reached a terminal status.
	EndTime time.Time `json:"end_time,omitzero" yaml:"end_time,omitempty"`

	// RequestsIssued counts gate permits consumed by page fetches.
	RequestsIssued int `json:"requests_issued" yaml:"requests_issued"`

	// PagesFetched counts pages whose body was fetched successfully.
	PagesFetched int `json:"pages_fetched" yaml:"pages_fetched"`

	// RecordsCollected counts accepted anonymized records.
	RecordsCollected int `json:"records_collected" yaml:"records_collected"`

	// Status is the lifecycle state.
	Status SessionStatus `json:"status" yaml:"status"`

	// Reason explains why the session stopped.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// NewSessionState creates a running session state.
func NewSessionState(sessionID, target string, start time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Target:    target,
		StartTime: start,
		Status:    SessionRunning,
	}
}

// Finish moves the session to a terminal status.
// It returns false and changes nothing if the session already finished.
func (s *SessionState) Finish(status SessionStatus, reason string, at time.Time) bool {
	if s.Status.IsTerminal() || !status.IsTerminal() {
		return false
	}
	s.Status = status
	s.Reason = reason
	s.EndTime = at
	return true
}

// Duration returns the elapsed session time, up to now if still running.
func (s *SessionState) Duration(now time.Time) time.Duration {
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// CrawlStats counts what happened to records and pages during a crawl.
type CrawlStats struct {
	// RawRecords counts records produced by the parser.
	RawRecords int `json:"raw_records" yaml:"raw_records"`

	// DuplicatesDropped counts records rejected by the dedup index.
	DuplicatesDropped int `json:"duplicates_dropped" yaml:"duplicates_dropped"`

	// CutoffDropped counts records older than the time cutoff.
	CutoffDropped int `json:"cutoff_dropped" yaml:"cutoff_dropped"`

	// SensitiveScrubbed counts records whose content needed scrubbing.
	SensitiveScrubbed int `json:"sensitive_scrubbed" yaml:"sensitive_scrubbed"`

	// SensitiveRejected counts records still sensitive after scrubbing.
	SensitiveRejected int `json:"sensitive_rejected" yaml:"sensitive_rejected"`

	// ShortDropped counts records whose scrubbed content was too short.
	ShortDropped int `json:"short_dropped" yaml:"short_dropped"`

	// CapDropped counts records rejected by the per-page or total cap.
	CapDropped int `json:"cap_dropped" yaml:"cap_dropped"`

	// TransportFailures counts pages skipped after fetch retries ran out.
	TransportFailures int `json:"transport_failures" yaml:"transport_failures"`

	// ParseFailures counts pages skipped because parsing failed.
	ParseFailures int `json:"parse_failures" yaml:"parse_failures"`

	// RateLimitRetries counts gate denials that were retried.
	RateLimitRetries int `json:"rate_limit_retries" yaml:"rate_limit_retries"`
}

// SessionResult is what a crawl session returns to its caller.
// It is always populated, whether the session completed or aborted.
type SessionResult struct {
	// State is the final session state.
	State SessionState `json:"state" yaml:"state"`

	// Stats are the crawl counters.
	Stats CrawlStats `json:"stats" yaml:"stats"`

	// Bundle is the stamped record set, possibly partial.
	Bundle *Bundle `json:"bundle,omitempty" yaml:"bundle,omitempty"`

	// Candidates is how many entities the resolver returned.
	Candidates int `json:"candidates" yaml:"candidates"`

	// PersistError is set when the sink failed to store the bundle.
	PersistError string `json:"persist_error,omitempty" yaml:"persist_error,omitempty"`
}

// Completed reports whether the session finished normally.
func (r *SessionResult) Completed() bool {
	return r.State.Status == SessionCompleted
}
