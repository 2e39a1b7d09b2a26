package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/poi"
)

var testNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

// createTestReport creates a report with one completed and one aborted session.
func createTestReport() *SessionReport {
	done := model.NewSessionState("sess-ok", "全聚德", testNow.Add(-2*time.Minute))
	done.TargetURL = "https://www.example.com/shop/1/review_all"
	done.RequestsIssued = 3
	done.PagesFetched = 3
	done.RecordsCollected = 27
	done.Finish(model.SessionCompleted, model.ReasonNoMorePages, testNow.Add(-time.Minute))

	aborted := model.NewSessionState("sess-denied", "https://blocked.example.com/shop/9", testNow.Add(-30*time.Second))
	aborted.Finish(model.SessionAborted, model.ReasonRobotsExcluded, testNow.Add(-29*time.Second))

	results := []*model.SessionResult{
		{
			State:      *done,
			Stats:      model.CrawlStats{RawRecords: 30, DuplicatesDropped: 2, ShortDropped: 1},
			Bundle:     model.NewBundle(done, model.PurposeResearch, model.PlatformDianping, nil, testNow, 30*24*time.Hour),
			Candidates: 3,
		},
		{
			State: *aborted,
		},
		nil,
	}

	gate := &compliance.Report{
		GeneratedAt:   testNow,
		Limits:        compliance.DefaultLimits(),
		RobotsChecks:  4,
		RobotsFetches: 2,
		RobotsOrigins: 2,
		Domains: []compliance.DomainUsage{
			{Domain: "example.com", LastMinute: 1, LastHour: 3, LastDay: 3, CrawlDelay: 10 * time.Second},
			{Domain: "blocked.example.com", Denials: map[string]int{model.ReasonRobotsExcluded: 1}},
		},
	}

	return NewSessionReport(results, gate, testNow)
}

// TestSessionReport tests the aggregate counters.
func TestSessionReport(t *testing.T) {
	t.Parallel()

	report := createTestReport()

	if len(report.Sessions) != 2 {
		t.Fatalf("expected nil results to be dropped, got %d sessions", len(report.Sessions))
	}
	if report.CompletedCount() != 1 || report.AbortedCount() != 1 {
		t.Errorf("completed/aborted = %d/%d, want 1/1", report.CompletedCount(), report.AbortedCount())
	}
	if report.TotalRecords() != 27 {
		t.Errorf("TotalRecords() = %d, want 27", report.TotalRecords())
	}
	if report.HasPersistErrors() {
		t.Error("expected no persist errors")
	}

	reasons := report.StopReasons()
	if len(reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %d", len(reasons))
	}
	if reasons[0].Reason != model.ReasonNoMorePages || reasons[1].Reason != model.ReasonRobotsExcluded {
		t.Errorf("unexpected reason order: %+v", reasons)
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes sessions", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"REVIEWGATE CRAWL REPORT",
			"Sessions:   2 (1 completed, 1 aborted)",
			"SESSION sess-ok",
			"completed (no_more_pages)",
			"aborted (robots_excluded)",
			"Candidates: 3 (first used)",
			"Duplicates:",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "COMPLIANCE") {
			t.Error("compliance section should only appear in verbose mode")
		}
		if strings.Contains(output, "Over cap:") {
			t.Error("zero counters should be hidden without showEmpty")
		}
	})

	t.Run("verbose mode includes compliance", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true), WithShowEmpty(true))

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"COMPLIANCE",
			"[example.com] minute 1, hour 3, day 3, crawl-delay 10s",
			"denied robots_excluded: 1",
			"Over cap:",
			"Rate limit retries:",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("shows persist error", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Sessions[0].PersistError = "failed to persist bundle to db: disk full"

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "PERSIST ERROR: failed to persist bundle to db: disk full") {
			t.Error("expected persist error in output")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outputs valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded struct {
			Completed int `json:"completed"`
			Aborted   int `json:"aborted"`
			Records   int `json:"total_records"`
			Sessions  []struct {
				SessionID string `json:"session_id"`
				Reason    string `json:"reason"`
				Duration  string `json:"duration"`
				Metadata  *struct {
					ComplianceVersion string `json:"compliance_version"`
				} `json:"metadata"`
			} `json:"sessions"`
			Compliance *struct {
				RobotsChecks int `json:"robots_checks"`
			} `json:"compliance"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}

		if decoded.Completed != 1 || decoded.Aborted != 1 || decoded.Records != 27 {
			t.Errorf("unexpected totals: %+v", decoded)
		}
		if len(decoded.Sessions) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(decoded.Sessions))
		}
		if decoded.Sessions[0].Duration != "1m0s" {
			t.Errorf("duration = %q, want 1m0s", decoded.Sessions[0].Duration)
		}
		if decoded.Sessions[0].Metadata == nil || decoded.Sessions[0].Metadata.ComplianceVersion != model.ComplianceVersion {
			t.Error("expected bundle metadata on the first session")
		}
		if decoded.Sessions[1].Metadata != nil {
			t.Error("expected no metadata for a session without bundle")
		}
		if decoded.Compliance == nil || decoded.Compliance.RobotsChecks != 4 {
			t.Error("expected compliance snapshot")
		}
	})

	t.Run("never includes records", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Sessions[0].Bundle.Records = []model.AnonymizedReview{{Content: "secret review body"}}

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "secret review body") {
			t.Error("records must not appear in the report")
		}
	})

	t.Run("compact output by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected a single line of output")
		}
	})

	t.Run("pretty print with indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"") {
			t.Error("expected indented output")
		}
	})
}

// TestFullJSONWriter tests the versioned JSON writer.
func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewFullJSONWriter(&buf, "v1.2.3")

	if _, err := w.Write(createTestReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["version"] != "v1.2.3" {
		t.Errorf("version = %v, want v1.2.3", decoded["version"])
	}
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero length")
		}

		output := buf.String()
		for _, want := range []string{
			"# Review Crawl Report",
			"## Sessions",
			"`sess-ok`",
			"### Dropped Records",
			"## Stop Reasons",
			"```mermaid",
			"## Compliance",
			"blocked.example.com",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("no sessions", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(NewSessionReport(nil, nil, testNow)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "No sessions were run.") {
			t.Error("expected empty-state text")
		}
		if strings.Contains(output, "## Compliance") {
			t.Error("compliance section should be omitted without a snapshot")
		}
	})
}

func createTestPOIResult() *poi.Result {
	return &poi.Result{
		Keyword: "火锅",
		City:    "北京",
		POIs: []model.POI{
			{UniqueID: 1, Name: "海底捞", Address: "王府井大街88号", Platform: model.PlatformAmap, Rating: 4.6},
			{UniqueID: 2, Name: "小吊梨汤", Address: "西单北大街1号", Platform: model.PlatformBaidu, Rating: 4.2},
		},
		Sources: []poi.SourceStatus{
			{Platform: model.PlatformAmap, Found: 1},
			{Platform: model.PlatformBaidu, Found: 2},
			{Platform: model.PlatformTencent, Error: "missing api key"},
		},
		Duplicates: 1,
	}
}

// TestWritePOI tests venue output across writers.
func TestWritePOI(t *testing.T) {
	t.Parallel()

	t.Run("simple", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WritePOI(createTestPOIResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Venues:     2 (1 duplicates merged)", "[!] tencent: missing api key", "  1. 海底捞"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WritePOI(createTestPOIResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded poi.Result
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded.POIs) != 2 || decoded.Duplicates != 1 {
			t.Errorf("unexpected result: %+v", decoded)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WritePOI(createTestPOIResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# Venue Search: 火锅 (北京)") {
			t.Error("expected title")
		}
		if !strings.Contains(output, "tencent: failed (missing api key)") {
			t.Error("expected failed source")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*SessionReport) (int, error) { return 0, errors.New("write failed") }
func (failingWriter) WritePOI(*poi.Result) (int, error) { return 0, errors.New("write failed") }

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var buf1, buf2 bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&buf1), NewJSONWriter(&buf2))

		n, err := mw.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf1.Len()+buf2.Len() {
			t.Errorf("bytes = %d, want %d", n, buf1.Len()+buf2.Len())
		}
		if buf1.Len() == 0 || buf2.Len() == 0 {
			t.Error("expected output in both buffers")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		mw := NewMultiWriter(failingWriter{}, NewSimpleWriter(&buf))

		if _, err := mw.WritePOI(createTestPOIResult()); err == nil {
			t.Fatal("expected error")
		}
		if buf.Len() != 0 {
			t.Error("writers after the failing one should not run")
		}
	})
}

// TestTruncateString tests rune-aware truncation.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short", input: "abc", max: 10, want: "abc"},
		{name: "ascii", input: "abcdefghij", max: 6, want: "abc..."},
		{name: "multibyte", input: "北京市朝阳区建国路", max: 5, want: "北京..."},
		{name: "tiny limit", input: "abcdef", max: 2, want: "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.max); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
