package config

import (
	"maps"
	"strings"
	"time"
)

// SiteConfig holds overrides for one review or map site.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MinDelay overrides the global minimum delay. It can only make pacing
	// slower than robots.txt Crawl-delay, never faster.
	MinDelay time.Duration `yaml:"min_delay,omitempty"`

	// MaxPages overrides the global page cap.
	MaxPages int `yaml:"max_pages,omitempty"`

	// MaxRecordsTotal overrides the global record cap.
	MaxRecordsTotal int `yaml:"max_records_total,omitempty"`

	// PerPageRecordCap overrides the global per-page cap.
	PerPageRecordCap int `yaml:"per_page_record_cap,omitempty"`

	// UserAgent overrides the global user agent.
	UserAgent string `yaml:"user_agent,omitempty"`

	// SearchURL overrides the venue search URL template.
	SearchURL string `yaml:"search_url,omitempty"`
}

// File represents the per-site sections of the .reviewgate configuration file.
type File struct {
	// Sites maps hosts to their overrides.
	// Keys are host names without scheme (e.g., "www.dianping.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// Host matching is case-insensitive.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if siteConfig.MinDelay != 0 {
		result.MinDelay = siteConfig.MinDelay
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.MaxRecordsTotal != 0 {
		result.MaxRecordsTotal = siteConfig.MaxRecordsTotal
	}
	if siteConfig.PerPageRecordCap != 0 {
		result.PerPageRecordCap = siteConfig.PerPageRecordCap
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.SearchURL != "" {
		result.SearchURL = siteConfig.SearchURL
	}

	return result
}
