package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
	"gopkg.in/yaml.v3"
)

// Format is a bundle file format.
type Format string

// Supported bundle formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for an unsupported bundle format.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// csvHeader is the column order of the records CSV.
var csvHeader = []string{"content_hash", "content", "rating", "time_bucket", "user_hash", "tags", "processed_at"}

// FileSink writes bundles into a directory.
type FileSink struct {
	dir     string
	format  Format
	skipCSV bool
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithFormat sets the bundle file format.
func WithFormat(f Format) Option {
	return func(s *FileSink) {
		s.format = f
	}
}

// WithoutCSV disables the CSV copy of the records.
func WithoutCSV() Option {
	return func(s *FileSink) {
		s.skipCSV = true
	}
}

// NewFileSink creates a sink writing into dir. The directory is created on
// first write.
func NewFileSink(dir string, opts ...Option) *FileSink {
	s := &FileSink{dir: dir, format: FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BundlePath returns the bundle file path for a session.
func (s *FileSink) BundlePath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+"."+string(s.format))
}

// CSVPath returns the records CSV path for a session.
func (s *FileSink) CSVPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".csv")
}

// SaveBundle writes the bundle file and, unless disabled, the records CSV.
func (s *FileSink) SaveBundle(ctx context.Context, bundle *model.Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bundle.Metadata.SessionID == "" {
		return errors.New("bundle has no session id")
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := writeFile(s.BundlePath(bundle.Metadata.SessionID), func(w io.Writer) error {
		return Encode(w, bundle, s.format)
	}); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	if s.skipCSV {
		return nil
	}
	if err := writeFile(s.CSVPath(bundle.Metadata.SessionID), func(w io.Writer) error {
		return WriteCSV(w, bundle.Records)
	}); err != nil {
		return fmt.Errorf("failed to write records csv: %w", err)
	}
	return nil
}

// Encode writes bundle to w in format.
func Encode(w io.Writer, bundle *model.Bundle, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(bundle)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(bundle); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode reads a bundle written by Encode.
func Decode(r io.Reader, format Format) (*model.Bundle, error) {
	var bundle model.Bundle
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&bundle); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&bundle); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &bundle, nil
}

// WriteCSV writes records with a header row. Tags are joined with "|".
func WriteCSV(w io.Writer, records []model.AnonymizedReview) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{
			r.ContentHash,
			r.Content,
			strconv.FormatFloat(r.Rating, 'f', -1, 64),
			string(r.TimeBucket),
			r.UserHash,
			strings.Join(r.Tags, "|"),
			r.ProcessedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFile writes through a temporary file and renames it into place.
func writeFile(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
