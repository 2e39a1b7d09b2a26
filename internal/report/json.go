package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/poi"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the session report in JSON format.
// Records are left out; only bundle metadata is written.
func (w *JSONWriter) Write(report *SessionReport) (int, error) {
	return w.writeJSON(summarize(report))
}

// WritePOI outputs the venue result in JSON format.
func (w *JSONWriter) WritePOI(result *poi.Result) (int, error) {
	return w.writeJSON(result)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// jsonSession is a session result without its records.
type jsonSession struct {
	SessionID    string                `json:"session_id"`
	Target       string                `json:"target"`
	TargetURL    string                `json:"target_url,omitempty"`
	Status       string                `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	StartTime    string                `json:"start_time"`
	Duration     string                `json:"duration"`
	Requests     int                   `json:"requests_issued"`
	Pages        int                   `json:"pages_fetched"`
	Records      int                   `json:"records_collected"`
	Candidates   int                   `json:"candidates"`
	Stats        model.CrawlStats      `json:"stats"`
	Metadata     *model.BundleMetadata `json:"metadata,omitempty"`
	PersistError string                `json:"persist_error,omitempty"`
}

// jsonReport is the JSON shape of a SessionReport.
type jsonReport struct {
	Version     string             `json:"version,omitempty"`
	GeneratedAt string             `json:"generated_at"`
	Completed   int                `json:"completed"`
	Aborted     int                `json:"aborted"`
	Records     int                `json:"total_records"`
	Sessions    []jsonSession      `json:"sessions"`
	Compliance  *compliance.Report `json:"compliance,omitempty"`
}

func summarize(report *SessionReport) *jsonReport {
	out := &jsonReport{
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC3339),
		Completed:   report.CompletedCount(),
		Aborted:     report.AbortedCount(),
		Records:     report.TotalRecords(),
		Sessions:    make([]jsonSession, 0, len(report.Sessions)),
		Compliance:  report.Compliance,
	}
	for _, s := range report.Sessions {
		js := jsonSession{
			SessionID:    s.State.SessionID,
			Target:       s.State.Target,
			TargetURL:    s.State.TargetURL,
			Status:       s.State.Status.String(),
			Reason:       s.State.Reason,
			StartTime:    s.State.StartTime.UTC().Format(time.RFC3339),
			Duration:     formatDuration(s.State.Duration(report.GeneratedAt)),
			Requests:     s.State.RequestsIssued,
			Pages:        s.State.PagesFetched,
			Records:      s.State.RecordsCollected,
			Candidates:   s.Candidates,
			Stats:        s.Stats,
			PersistError: s.PersistError,
		}
		if s.Bundle != nil {
			meta := s.Bundle.Metadata
			js.Metadata = &meta
		}
		out.Sessions = append(out.Sessions, js)
	}
	return out
}

// FullJSONWriter outputs session reports wrapped with the tool version.
type FullJSONWriter struct {
	*JSONWriter

	// version is the reviewgate version string.
	version string
}

// NewFullJSONWriter creates a writer for reports with version metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the session report with the version field set.
func (w *FullJSONWriter) Write(report *SessionReport) (int, error) {
	wrapped := summarize(report)
	wrapped.Version = w.version
	return w.writeJSON(wrapped)
}
