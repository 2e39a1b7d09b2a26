package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/reviewgate/internal/model"
)

// Default configuration values.
// Pacing defaults are deliberately conservative for public review sites.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "reviewgate"

	// DefaultMinDelay is the minimum spacing between two requests to one domain.
	DefaultMinDelay = 5 * time.Second

	// DefaultMaxPerMinute caps requests to one domain in any trailing minute.
	DefaultMaxPerMinute = 6

	// DefaultMaxPerHour caps requests to one domain in any trailing hour.
	DefaultMaxPerHour = 100

	// DefaultMaxPerDay caps requests to one domain in any trailing 24 hours.
	DefaultMaxPerDay = 500

	// DefaultMaxPages is the maximum number of listing pages per session.
	DefaultMaxPages = 5

	// DefaultMaxRecordsTotal is the maximum number of records per session.
	DefaultMaxRecordsTotal = 500

	// DefaultPerPageRecordCap is the maximum number of records kept per page.
	DefaultPerPageRecordCap = 50

	// DefaultTimeRangeMonths is how far back reviews are collected.
	DefaultTimeRangeMonths = 6

	// DefaultRetentionDays is how long a bundle may be kept.
	DefaultRetentionDays = 30

	// DefaultPurpose is the declared collection purpose.
	DefaultPurpose = "research"

	// DefaultPlatform is the review source.
	DefaultPlatform = "dianping"

	// DefaultTimeout is the total time allowed for one HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of sessions run concurrently.
	// Sessions on one domain still share its pacing.
	DefaultBatchSize = 2

	// DefaultUserAgent identifies the crawler to site operators.
	DefaultUserAgent = "reviewgate/1.0 (+research; respects robots.txt)"

	// DefaultDBDriver is the database driver used for bundle history.
	DefaultDBDriver = "sqlite"

	// DefaultExportFormat is the bundle file format.
	DefaultExportFormat = "json"
)

// Config holds all configuration options for reviewgate.
// It is populated from the config file, environment and CLI flags, in that
// order of increasing precedence, and passed down explicitly.
type Config struct {
	// Targets are venue names or review listing URLs.
	Targets []string

	// City narrows venue name searches.
	City string

	// Purpose is the declared collection purpose.
	Purpose string

	// Platform is the review source.
	Platform string

	// MinDelay is the minimum spacing between requests to one domain.
	MinDelay time.Duration

	// MaxPerMinute, MaxPerHour and MaxPerDay cap requests to one domain.
	// Zero disables a window.
	MaxPerMinute int
	MaxPerHour   int
	MaxPerDay    int

	// MaxPages is the maximum number of listing pages per session.
	MaxPages int

	// MaxRecordsTotal is the maximum number of records per session.
	MaxRecordsTotal int

	// PerPageRecordCap is the maximum number of records kept per page.
	PerPageRecordCap int

	// TimeRangeMonths is how far back reviews are collected.
	TimeRangeMonths int

	// RetentionDays is how long a bundle may be kept before purge.
	RetentionDays int

	// UserAgent is sent with every request and matched against robots.txt.
	UserAgent string

	// Timeout is the total time allowed for one HTTP request.
	Timeout time.Duration

	// RobotsTTL is how long a robots.txt policy is cached. Zero caches it for
	// the life of the process.
	RobotsTTL time.Duration

	// Proxy is an optional SOCKS5 proxy in "host:port" format.
	Proxy string

	// RequestsPerSecond is a process-wide request ceiling. Zero disables it.
	RequestsPerSecond float64

	// BatchSize is the number of sessions run concurrently.
	BatchSize int

	// DBDriver is "sqlite" or "postgres".
	DBDriver string

	// DBDSN is the postgres connection string.
	DBDSN string

	// DBDir is the SQLite database directory.
	// Defaults to XDG data directory (~/.local/share/reviewgate on Linux).
	DBDir string

	// SaveToDB stores bundles in the database.
	SaveToDB bool

	// ExportDir is where bundle files are written. Empty disables file export.
	ExportDir string

	// ExportFormat is "json" or "yaml".
	ExportFormat string

	// AmapKey, BaiduKey and TencentKey are map platform API keys for venue
	// search. A source without a key is skipped.
	AmapKey    string
	BaiduKey   string
	TencentKey string

	// JSONReport writes the session report as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport writes the session report as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the report output path. Empty means stdout.
	ReportFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the configuration file that was loaded, if any.
	ConfigFilePath string

	// SiteConfigs holds per-site overrides from the config file.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Purpose:          DefaultPurpose,
		Platform:         DefaultPlatform,
		MinDelay:         DefaultMinDelay,
		MaxPerMinute:     DefaultMaxPerMinute,
		MaxPerHour:       DefaultMaxPerHour,
		MaxPerDay:        DefaultMaxPerDay,
		MaxPages:         DefaultMaxPages,
		MaxRecordsTotal:  DefaultMaxRecordsTotal,
		PerPageRecordCap: DefaultPerPageRecordCap,
		TimeRangeMonths:  DefaultTimeRangeMonths,
		RetentionDays:    DefaultRetentionDays,
		UserAgent:        DefaultUserAgent,
		Timeout:          DefaultTimeout,
		BatchSize:        DefaultBatchSize,
		DBDriver:         DefaultDBDriver,
		DBDir:            XDGDataDir(),
		SaveToDB:         true,
		ExportFormat:     DefaultExportFormat,
	}
}

// XDGDataDir returns the XDG data directory for reviewgate.
// On Linux: ~/.local/share/reviewgate
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for reviewgate.
// On Linux: ~/.config/reviewgate
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for reviewgate.
// On Linux: ~/.cache/reviewgate
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Retention returns the retention period as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Validate checks if the configuration is valid for a crawl.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if err := c.ValidateLimits(); err != nil {
		return err
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ValidateLimits checks everything except the targets. Commands that do not
// crawl named targets use it directly.
func (c *Config) ValidateLimits() error {
	if _, err := model.ParsePurpose(c.Purpose); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPurpose, c.Purpose)
	}
	if _, err := model.ParsePlatform(c.Platform); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, c.Platform)
	}
	if c.MinDelay < 0 {
		return ErrInvalidMinDelay
	}
	if c.MaxPerMinute < 0 || c.MaxPerHour < 0 || c.MaxPerDay < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxRecordsTotal <= 0 {
		return ErrInvalidMaxRecords
	}
	if c.PerPageRecordCap <= 0 {
		return ErrInvalidPerPageCap
	}
	if c.TimeRangeMonths <= 0 {
		return ErrInvalidTimeRange
	}
	if c.RetentionDays <= 0 {
		return ErrInvalidRetention
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// ForHost returns a copy of c with the site overrides for host applied.
func (c *Config) ForHost(host string) *Config {
	out := *c
	if c.SiteConfigs == nil {
		return &out
	}

	site := c.SiteConfigs.GetSiteConfig(host)
	if site.MinDelay > 0 {
		out.MinDelay = site.MinDelay
	}
	if site.MaxPages > 0 {
		out.MaxPages = site.MaxPages
	}
	if site.MaxRecordsTotal > 0 {
		out.MaxRecordsTotal = site.MaxRecordsTotal
	}
	if site.PerPageRecordCap > 0 {
		out.PerPageRecordCap = site.PerPageRecordCap
	}
	if site.UserAgent != "" {
		out.UserAgent = site.UserAgent
	}
	return &out
}
