// Package report renders crawl session summaries.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for sharing and archiving
//
// A SessionReport bundles the session results of one command run with the
// compliance gate snapshot taken after the last session finished. Writers
// never print review content; records are only written by export sinks.
package report
