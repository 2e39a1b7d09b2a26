package model

import "time"

// ComplianceVersion is stamped on every bundle.
const ComplianceVersion = "1.0"

// BundleMetadata describes a persisted record set.
type BundleMetadata struct {
	SessionID         string        `json:"session_id" yaml:"session_id"`
	Target            string        `json:"target" yaml:"target"`
	TargetURL         string        `json:"target_url,omitempty" yaml:"target_url,omitempty"`
	Purpose           Purpose       `json:"purpose" yaml:"purpose"`
	Platform          Platform      `json:"platform" yaml:"platform"`
	CollectionTime    time.Time     `json:"collection_time" yaml:"collection_time"`
	TotalRecords      int           `json:"total_records" yaml:"total_records"`
	PagesFetched      int           `json:"pages_fetched" yaml:"pages_fetched"`
	RequestsIssued    int           `json:"requests_issued" yaml:"requests_issued"`
	Status            SessionStatus `json:"status" yaml:"status"`
	Reason            string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	ComplianceVersion string        `json:"compliance_version" yaml:"compliance_version"`
	RetentionUntil    time.Time     `json:"retention_until" yaml:"retention_until"`
	PrivacyProtected  bool          `json:"privacy_protected" yaml:"privacy_protected"`
	Anonymized        bool          `json:"anonymized" yaml:"anonymized"`
}

// Bundle is the unit handed to a persistence sink.
type Bundle struct {
	Metadata BundleMetadata     `json:"metadata" yaml:"metadata"`
	Records  []AnonymizedReview `json:"records" yaml:"records"`
}

// NewBundle stamps metadata for a finished session.
// RetentionUntil is collection time plus retention.
func NewBundle(state *SessionState, purpose Purpose, platform Platform, records []AnonymizedReview, now time.Time, retention time.Duration) *Bundle {
	if records == nil {
		records = []AnonymizedReview{}
	}
	return &Bundle{
		Metadata: BundleMetadata{
			SessionID:         state.SessionID,
			Target:            state.Target,
			TargetURL:         state.TargetURL,
			Purpose:           purpose,
			Platform:          platform,
			CollectionTime:    now,
			TotalRecords:      len(records),
			PagesFetched:      state.PagesFetched,
			RequestsIssued:    state.RequestsIssued,
			Status:            state.Status,
			Reason:            state.Reason,
			ComplianceVersion: ComplianceVersion,
			RetentionUntil:    now.Add(retention),
			PrivacyProtected:  true,
			Anonymized:        true,
		},
		Records: records,
	}
}

// Expired reports whether the bundle is past its retention date.
func (b *Bundle) Expired(now time.Time) bool {
	return !b.Metadata.RetentionUntil.IsZero() && now.After(b.Metadata.RetentionUntil)
}

// POI is a venue record from a map-search source.
type POI struct {
	// UniqueID is assigned sequentially after cross-source merging.
	UniqueID int `json:"unique_id" yaml:"unique_id"`

	// Name is the venue name.
	Name string `json:"name" yaml:"name"`

	// Address is the venue street address.
	Address string `json:"address" yaml:"address"`

	// Location is "lng,lat" as reported by the source.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// Category is the source-specific category label.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Rating is the source rating, 0 when absent.
	Rating float64 `json:"rating,omitempty" yaml:"rating,omitempty"`

	// Platform is the source the record came from.
	Platform Platform `json:"platform" yaml:"platform"`

	// SourceID is the source-specific identifier.
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`
}
