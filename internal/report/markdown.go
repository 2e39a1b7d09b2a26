package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/poi"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the session report in Markdown format.
func (w *MarkdownWriter) Write(report *SessionReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSessions(md, report)
	w.writeStopReasons(md, report)
	if report.Compliance != nil {
		w.writeCompliance(md, report.Compliance)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report title and overview table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *SessionReport) {
	md.H1("Review Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format(displayTime)},
			{"Sessions", strconv.Itoa(len(report.Sessions))},
			{"Completed", strconv.Itoa(report.CompletedCount())},
			{"Aborted", strconv.Itoa(report.AbortedCount())},
			{"Records", strconv.Itoa(report.TotalRecords())},
		},
	})
	md.PlainText("")

	switch {
	case report.HasPersistErrors():
		md.Caution("At least one bundle could not be persisted. See the session table.")
	case report.AbortedCount() > 0:
		md.Warningf("%d session(s) stopped early.", report.AbortedCount())
	case len(report.Sessions) > 0:
		md.Tip("All sessions completed.")
	}
	md.PlainText("")
}

// writeSessions writes the per-session summary and drop counters.
func (w *MarkdownWriter) writeSessions(md *markdown.Markdown, report *SessionReport) {
	md.H2("Sessions")
	md.PlainText("")

	if len(report.Sessions) == 0 {
		md.PlainText("No sessions were run.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Sessions))
	for _, s := range report.Sessions {
		rows = append(rows, []string{
			"`" + s.State.SessionID + "`",
			truncateString(s.State.Target, 40),
			statusText(s),
			formatDuration(s.State.Duration(report.GeneratedAt)),
			strconv.Itoa(s.State.RequestsIssued),
			strconv.Itoa(s.State.PagesFetched),
			strconv.Itoa(s.State.RecordsCollected),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Session", "Target", "Status", "Duration", "Requests", "Pages", "Records"},
		Rows:   rows,
	})
	md.PlainText("")

	md.H3("Dropped Records")
	md.PlainText("")
	dropRows := make([][]string, 0, len(report.Sessions))
	for _, s := range report.Sessions {
		row := []string{"`" + s.State.SessionID + "`"}
		for _, d := range dropped(s.Stats) {
			row = append(row, strconv.Itoa(d.value))
		}
		row = append(row, strconv.Itoa(s.Stats.TransportFailures+s.Stats.ParseFailures))
		dropRows = append(dropRows, row)
	}
	header := []string{"Session"}
	for _, d := range dropped(model.CrawlStats{}) {
		header = append(header, d.label)
	}
	header = append(header, "Failed pages")
	md.Table(markdown.TableSet{Header: header, Rows: dropRows})
	md.PlainText("")

	for _, s := range report.Sessions {
		if s.PersistError != "" {
			md.Details("Persist error: "+s.State.SessionID, s.PersistError)
		}
	}
}

// writeStopReasons writes a pie chart of why sessions stopped.
func (w *MarkdownWriter) writeStopReasons(md *markdown.Markdown, report *SessionReport) {
	reasons := report.StopReasons()
	if len(reasons) < 2 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Stop Reasons"),
		piechart.WithShowData(true),
	)
	for _, r := range reasons {
		chart.LabelAndIntValue(r.Reason, uint64(r.Count)) //nolint:gosec // counts are never negative
	}

	md.H2("Stop Reasons")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeCompliance writes the gate limits and per-domain usage.
func (w *MarkdownWriter) writeCompliance(md *markdown.Markdown, c *compliance.Report) {
	md.H2("Compliance")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Rule", "Value"},
		Rows: [][]string{
			{"Minimum delay", c.Limits.MinDelay.String()},
			{"Per minute", strconv.Itoa(c.Limits.MaxPerMinute)},
			{"Per hour", strconv.Itoa(c.Limits.MaxPerHour)},
			{"Per day", strconv.Itoa(c.Limits.MaxPerDay)},
			{"Robots checks", strconv.FormatInt(c.RobotsChecks, 10)},
			{"Robots fetches", strconv.FormatInt(c.RobotsFetches, 10)},
			{"Robots origins", strconv.Itoa(c.RobotsOrigins)},
		},
	})
	md.PlainText("")

	if c.RobotsDegraded > 0 {
		md.Importantf("%d robots decision(s) fell back to allow because robots.txt could not be fetched.", c.RobotsDegraded)
		md.PlainText("")
	}

	if len(c.Domains) == 0 {
		return
	}

	rows := make([][]string, 0, len(c.Domains))
	for _, d := range c.Domains {
		rows = append(rows, []string{
			d.Domain,
			strconv.Itoa(d.LastMinute),
			strconv.Itoa(d.LastHour),
			strconv.Itoa(d.LastDay),
			d.CrawlDelay.String(),
			strconv.Itoa(d.Denials[model.ReasonRobotsExcluded]),
			strconv.Itoa(d.Denials[model.ReasonRateLimited]),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Last minute", "Last hour", "Last day", "Crawl-delay", "Robots denials", "Rate denials"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WritePOI outputs the venue result in Markdown format.
func (w *MarkdownWriter) WritePOI(result *poi.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(fmt.Sprintf("Venue Search: %s (%s)", result.Keyword, result.City))
	md.PlainText("")

	sources := make([]string, 0, len(result.Sources))
	for _, src := range result.Sources {
		if src.Error != "" {
			sources = append(sources, fmt.Sprintf("%s: failed (%s)", src.Platform, src.Error))
			continue
		}
		sources = append(sources, fmt.Sprintf("%s: %d", src.Platform, src.Found))
	}
	md.BulletList(sources...)
	md.PlainText("")
	md.PlainTextf("%d venues, %d duplicates merged.", len(result.POIs), result.Duplicates)
	md.PlainText("")

	if len(result.POIs) > 0 {
		rows := make([][]string, 0, len(result.POIs))
		for _, p := range result.POIs {
			rows = append(rows, []string{
				strconv.Itoa(p.UniqueID),
				p.Name,
				truncateString(p.Address, 40),
				string(p.Platform),
				strconv.FormatFloat(p.Rating, 'f', 1, 64),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"#", "Name", "Address", "Source", "Rating"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Collected for non-commercial use. Records are anonymized.*")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
