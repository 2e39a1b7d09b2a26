package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/poi"
)

// displayTime is the timestamp layout used by the text writers.
const displayTime = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether zero drop counters are shown.
	showEmpty bool

	// verbose adds the compliance section and per-session counters.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show zero counters.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the session report in human-readable format.
func (w *SimpleWriter) Write(report *SessionReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, "REVIEWGATE CRAWL REPORT")
	fmt.Fprintf(&sb, "Generated:  %s\n", report.GeneratedAt.Format(displayTime))
	fmt.Fprintf(&sb, "Sessions:   %d (%d completed, %d aborted)\n",
		len(report.Sessions), report.CompletedCount(), report.AbortedCount())
	fmt.Fprintf(&sb, "Records:    %d\n\n", report.TotalRecords())

	for _, s := range report.Sessions {
		w.writeSession(&sb, report, s)
	}

	if w.verbose && report.Compliance != nil {
		w.writeCompliance(&sb, report.Compliance)
	}

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes a boxed title.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	pad := max(0, (70-len(title))/2)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

// writeSection writes a section divider.
func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeSession writes one session block.
func (w *SimpleWriter) writeSession(sb *strings.Builder, report *SessionReport, s *model.SessionResult) {
	w.writeSection(sb, "SESSION "+s.State.SessionID)

	fmt.Fprintf(sb, "Target:     %s\n", s.State.Target)
	if s.State.TargetURL != "" && s.State.TargetURL != s.State.Target {
		fmt.Fprintf(sb, "Listing:    %s\n", s.State.TargetURL)
	}
	fmt.Fprintf(sb, "Status:     %s\n", statusText(s))
	fmt.Fprintf(sb, "Started:    %s\n", s.State.StartTime.Format(displayTime))
	fmt.Fprintf(sb, "Duration:   %s\n", formatDuration(s.State.Duration(report.GeneratedAt)))
	fmt.Fprintf(sb, "Requests:   %d\n", s.State.RequestsIssued)
	fmt.Fprintf(sb, "Pages:      %d\n", s.State.PagesFetched)
	fmt.Fprintf(sb, "Records:    %d\n", s.State.RecordsCollected)
	if s.Candidates > 1 {
		fmt.Fprintf(sb, "Candidates: %d (first used)\n", s.Candidates)
	}
	if s.Bundle != nil {
		fmt.Fprintf(sb, "Retain to:  %s\n", s.Bundle.Metadata.RetentionUntil.Format(displayTime))
	}
	if s.PersistError != "" {
		fmt.Fprintf(sb, "PERSIST ERROR: %s\n", s.PersistError)
	}
	sb.WriteString("\n")

	lines := make([]string, 0)
	for _, d := range dropped(s.Stats) {
		if d.value == 0 && !w.showEmpty {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-18s %d", d.label+":", d.value))
	}
	if len(lines) > 0 {
		sb.WriteString("Dropped records:\n")
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}

	if w.verbose {
		fmt.Fprintf(sb, "  Parsed:             %d\n", s.Stats.RawRecords)
		fmt.Fprintf(sb, "  Scrubbed:           %d\n", s.Stats.SensitiveScrubbed)
		fmt.Fprintf(sb, "  Transport failures: %d\n", s.Stats.TransportFailures)
		fmt.Fprintf(sb, "  Parse failures:     %d\n", s.Stats.ParseFailures)
		fmt.Fprintf(sb, "  Rate limit retries: %d\n\n", s.Stats.RateLimitRetries)
	}
}

// writeCompliance writes the gate snapshot.
func (w *SimpleWriter) writeCompliance(sb *strings.Builder, c *compliance.Report) {
	w.writeSection(sb, "COMPLIANCE")

	fmt.Fprintf(sb, "Limits:         min delay %s, %d/min, %d/hour, %d/day\n",
		c.Limits.MinDelay, c.Limits.MaxPerMinute, c.Limits.MaxPerHour, c.Limits.MaxPerDay)
	fmt.Fprintf(sb, "Robots checks:  %d (%d fetched, %d degraded, %d origins)\n\n",
		c.RobotsChecks, c.RobotsFetches, c.RobotsDegraded, c.RobotsOrigins)

	for _, d := range c.Domains {
		fmt.Fprintf(sb, "  [%s] minute %d, hour %d, day %d", d.Domain, d.LastMinute, d.LastHour, d.LastDay)
		if d.CrawlDelay > 0 {
			fmt.Fprintf(sb, ", crawl-delay %s", d.CrawlDelay)
		}
		sb.WriteString("\n")
		for _, reason := range []string{model.ReasonRobotsExcluded, model.ReasonRateLimited} {
			if n := d.Denials[reason]; n > 0 {
				fmt.Fprintf(sb, "    denied %s: %d\n", reason, n)
			}
		}
	}
	sb.WriteString("\n")
}

// WritePOI outputs the venue result as a numbered list.
func (w *SimpleWriter) WritePOI(result *poi.Result) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, "REVIEWGATE VENUE SEARCH")
	fmt.Fprintf(&sb, "Keyword:    %s\n", result.Keyword)
	fmt.Fprintf(&sb, "City:       %s\n", result.City)
	fmt.Fprintf(&sb, "Venues:     %d (%d duplicates merged)\n\n", len(result.POIs), result.Duplicates)

	w.writeSection(&sb, "SOURCES")
	for _, src := range result.Sources {
		if src.Error != "" {
			fmt.Fprintf(&sb, "  [!] %s: %s\n", src.Platform, src.Error)
			continue
		}
		fmt.Fprintf(&sb, "  [+] %s: %d\n", src.Platform, src.Found)
	}
	sb.WriteString("\n")

	if len(result.POIs) > 0 {
		w.writeSection(&sb, "VENUES")
		for _, p := range result.POIs {
			fmt.Fprintf(&sb, "  %3d. %s\n", p.UniqueID, p.Name)
			if p.Address != "" {
				fmt.Fprintf(&sb, "       %s\n", p.Address)
			}
			if w.verbose {
				fmt.Fprintf(&sb, "       %s, rating %.1f, %s\n", p.Platform, p.Rating, p.Location)
			}
		}
		sb.WriteString("\n")
	}

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Collected for non-commercial use. Records are anonymized.\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
