package report

import (
	"sort"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
)

// SessionReport is the summary of one or more crawl sessions.
type SessionReport struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time

	// Sessions are the session results in request order.
	Sessions []*model.SessionResult

	// Compliance is the gate snapshot. Nil when not available.
	Compliance *compliance.Report
}

// NewSessionReport creates a report from session results.
func NewSessionReport(results []*model.SessionResult, gate *compliance.Report, now time.Time) *SessionReport {
	sessions := make([]*model.SessionResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			sessions = append(sessions, r)
		}
	}
	return &SessionReport{
		GeneratedAt: now,
		Sessions:    sessions,
		Compliance:  gate,
	}
}

// CompletedCount returns the number of sessions that finished normally.
func (r *SessionReport) CompletedCount() int {
	n := 0
	for _, s := range r.Sessions {
		if s.Completed() {
			n++
		}
	}
	return n
}

// AbortedCount returns the number of sessions that stopped early.
func (r *SessionReport) AbortedCount() int {
	return len(r.Sessions) - r.CompletedCount()
}

// TotalRecords returns the number of records collected by all sessions.
func (r *SessionReport) TotalRecords() int {
	n := 0
	for _, s := range r.Sessions {
		n += s.State.RecordsCollected
	}
	return n
}

// HasPersistErrors reports whether any sink failed.
func (r *SessionReport) HasPersistErrors() bool {
	for _, s := range r.Sessions {
		if s.PersistError != "" {
			return true
		}
	}
	return false
}

// ReasonCount is the number of sessions that stopped for one reason.
type ReasonCount struct {
	Reason string
	Count  int
}

// StopReasons counts sessions by stop reason, most frequent first.
func (r *SessionReport) StopReasons() []ReasonCount {
	counts := make(map[string]int)
	for _, s := range r.Sessions {
		reason := s.State.Reason
		if reason == "" {
			reason = string(s.State.Status)
		}
		counts[reason]++
	}

	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// dropped lists the record drop counters in display order.
func dropped(stats model.CrawlStats) []struct {
	label string
	value int
} {
	return []struct {
		label string
		value int
	}{
		{"Duplicates", stats.DuplicatesDropped},
		{"Older than cutoff", stats.CutoffDropped},
		{"Sensitive", stats.SensitiveRejected},
		{"Too short", stats.ShortDropped},
		{"Over cap", stats.CapDropped},
	}
}

// statusText returns a short status label for a session.
func statusText(s *model.SessionResult) string {
	if s.State.Reason == "" {
		return s.State.Status.String()
	}
	return s.State.Status.String() + " (" + s.State.Reason + ")"
}

// formatDuration rounds a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
