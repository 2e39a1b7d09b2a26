package report

import (
	"io"

	"github.com/nao1215/reviewgate/internal/poi"
)

// Writer defines the interface for report output.
// Implementations write session and venue search summaries in various formats.
type Writer interface {
	// Write outputs a session report.
	// Returns the number of bytes written and any error encountered.
	Write(report *SessionReport) (int, error)

	// WritePOI outputs a merged venue search result.
	WritePOI(result *poi.Result) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *SessionReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePOI outputs the venue result to all configured Writers.
func (m *MultiWriter) WritePOI(result *poi.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePOI(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
