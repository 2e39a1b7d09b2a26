package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults should be intentional, so they are pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("pacing defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.MinDelay != 5*time.Second {
			t.Errorf("expected MinDelay 5s, got %v", cfg.MinDelay)
		}
		if cfg.MaxPerMinute != 6 || cfg.MaxPerHour != 100 || cfg.MaxPerDay != 500 {
			t.Errorf("unexpected caps %d/%d/%d", cfg.MaxPerMinute, cfg.MaxPerHour, cfg.MaxPerDay)
		}
	})

	t.Run("volume defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPages != 5 {
			t.Errorf("expected MaxPages 5, got %d", cfg.MaxPages)
		}
		if cfg.MaxRecordsTotal != 500 {
			t.Errorf("expected MaxRecordsTotal 500, got %d", cfg.MaxRecordsTotal)
		}
		if cfg.PerPageRecordCap != 50 {
			t.Errorf("expected PerPageRecordCap 50, got %d", cfg.PerPageRecordCap)
		}
		if cfg.TimeRangeMonths != 6 {
			t.Errorf("expected TimeRangeMonths 6, got %d", cfg.TimeRangeMonths)
		}
	})

	t.Run("retention default is 30 days", func(t *testing.T) {
		t.Parallel()
		if cfg.Retention() != 30*24*time.Hour {
			t.Errorf("expected 720h, got %v", cfg.Retention())
		}
	})

	t.Run("default purpose is research", func(t *testing.T) {
		t.Parallel()
		if cfg.Purpose != "research" {
			t.Errorf("expected research, got %q", cfg.Purpose)
		}
	})

	t.Run("database defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.DBDriver != "sqlite" || !cfg.SaveToDB {
			t.Errorf("unexpected database defaults %q %v", cfg.DBDriver, cfg.SaveToDB)
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case breaks one validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Targets = []string{"全聚德"}
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "no targets", modify: func(c *Config) { c.Targets = nil }, want: ErrNoTarget},
		{name: "commercial purpose", modify: func(c *Config) { c.Purpose = "commercial" }, want: ErrInvalidPurpose},
		{name: "unknown platform", modify: func(c *Config) { c.Platform = "yelp" }, want: ErrInvalidPlatform},
		{name: "negative min delay", modify: func(c *Config) { c.MinDelay = -time.Second }, want: ErrInvalidMinDelay},
		{name: "negative hourly cap", modify: func(c *Config) { c.MaxPerHour = -1 }, want: ErrInvalidRateLimit},
		{name: "zero max pages", modify: func(c *Config) { c.MaxPages = 0 }, want: ErrInvalidMaxPages},
		{name: "zero max records", modify: func(c *Config) { c.MaxRecordsTotal = 0 }, want: ErrInvalidMaxRecords},
		{name: "zero per-page cap", modify: func(c *Config) { c.PerPageRecordCap = 0 }, want: ErrInvalidPerPageCap},
		{name: "zero time range", modify: func(c *Config) { c.TimeRangeMonths = 0 }, want: ErrInvalidTimeRange},
		{name: "zero retention", modify: func(c *Config) { c.RetentionDays = 0 }, want: ErrInvalidRetention},
		{name: "zero batch", modify: func(c *Config) { c.BatchSize = 0 }, want: ErrInvalidBatchSize},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, want: ErrInvalidTimeout},
		{name: "both report formats", modify: func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, want: ErrConflictingReportFormats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("zero caps disable windows", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.MaxPerMinute, cfg.MaxPerHour, cfg.MaxPerDay = 0, 0, 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("ValidateLimits ignores targets", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		if err := cfg.ValidateLimits(); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}

// TestFileGetSiteConfig tests merging site overrides over defaults.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	file := &File{
		Defaults: SiteConfig{
			Cookie:   "default=1",
			Headers:  map[string]string{"Accept-Language": "zh-CN"},
			MinDelay: 6 * time.Second,
		},
		Sites: map[string]SiteConfig{
			"www.dianping.com": {
				Cookie:   "_lxsdk=abc",
				Headers:  map[string]string{"Referer": "https://www.dianping.com/"},
				MaxPages: 3,
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()

		got := file.GetSiteConfig("www.example.com")
		if got.Cookie != "default=1" || got.MinDelay != 6*time.Second {
			t.Errorf("unexpected defaults: %+v", got)
		}
	})

	t.Run("site overrides merge over defaults", func(t *testing.T) {
		t.Parallel()

		got := file.GetSiteConfig("WWW.DIANPING.COM")
		if got.Cookie != "_lxsdk=abc" {
			t.Errorf("expected site cookie, got %q", got.Cookie)
		}
		if got.MaxPages != 3 {
			t.Errorf("expected MaxPages 3, got %d", got.MaxPages)
		}
		if got.MinDelay != 6*time.Second {
			t.Errorf("expected default MinDelay, got %v", got.MinDelay)
		}
		if got.Headers["Accept-Language"] != "zh-CN" || got.Headers["Referer"] == "" {
			t.Errorf("expected merged headers, got %v", got.Headers)
		}
	})

	t.Run("merging does not mutate defaults", func(t *testing.T) {
		t.Parallel()

		_ = file.GetSiteConfig("www.dianping.com")
		if _, ok := file.Defaults.Headers["Referer"]; ok {
			t.Error("defaults headers were modified")
		}
	})
}

// TestConfigForHost tests applying site overrides to a copy.
func TestConfigForHost(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.SiteConfigs = &File{
		Sites: map[string]SiteConfig{
			"www.dianping.com": {MinDelay: 10 * time.Second, MaxPages: 2, UserAgent: "custom/1.0"},
		},
	}

	got := cfg.ForHost("www.dianping.com")
	if got.MinDelay != 10*time.Second || got.MaxPages != 2 || got.UserAgent != "custom/1.0" {
		t.Errorf("overrides not applied: %+v", got)
	}
	if cfg.MinDelay != DefaultMinDelay || cfg.MaxPages != DefaultMaxPages {
		t.Error("original config was modified")
	}

	other := cfg.ForHost("www.example.com")
	if other.MaxPages != DefaultMaxPages {
		t.Errorf("expected defaults for unknown host, got %d", other.MaxPages)
	}

	if (&Config{MaxPages: 7}).ForHost("x").MaxPages != 7 {
		t.Error("expected copy without site configs")
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.reviewgate")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads sites and defaults", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".reviewgate")
		content := `max_pages: 4
defaults:
  min_delay: 8s
  cookie: "default=abc"
sites:
  WWW.Dianping.com:
    max_pages: 2
    headers:
      Referer: "https://www.dianping.com/"
`
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.MinDelay != 8*time.Second {
			t.Errorf("expected default min delay 8s, got %v", cfg.Defaults.MinDelay)
		}
		site, ok := cfg.Sites["www.dianping.com"]
		if !ok {
			t.Fatal("expected lower-cased host key")
		}
		if site.MaxPages != 2 || site.Headers["Referer"] == "" {
			t.Errorf("unexpected site config: %+v", site)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".reviewgate")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".reviewgate")
		if err := os.WriteFile(configPath, []byte("defaults:\n  max_pages: 3\n"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestLoad tests layering defaults, file, dotenv and environment.
// It changes the working directory and environment, so it is not parallel.
func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != DefaultMaxPages || cfg.MinDelay != DefaultMinDelay {
			t.Errorf("expected defaults, got %d %v", cfg.MaxPages, cfg.MinDelay)
		}
	})

	t.Run("explicit missing file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		if _, err := Load("/nonexistent/.reviewgate"); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("file values and env overrides", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		content := `max_pages: 3
min_delay: 12s
purpose: academic
max_requests_per_hour: 40
sites:
  www.dianping.com:
    max_pages: 1
`
		if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		t.Setenv("REVIEWGATE_MAX_REQUESTS_PER_HOUR", "20")
		t.Setenv("REVIEWGATE_AMAP_KEY", "amap-from-env")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != 3 || cfg.MinDelay != 12*time.Second || cfg.Purpose != "academic" {
			t.Errorf("file values not applied: %d %v %q", cfg.MaxPages, cfg.MinDelay, cfg.Purpose)
		}
		if cfg.MaxPerHour != 20 {
			t.Errorf("expected env override 20, got %d", cfg.MaxPerHour)
		}
		if cfg.AmapKey != "amap-from-env" {
			t.Errorf("expected amap key from env, got %q", cfg.AmapKey)
		}
		if cfg.ConfigFilePath == "" || cfg.SiteConfigs == nil {
			t.Fatal("expected config path and site configs")
		}
		if cfg.ForHost("www.dianping.com").MaxPages != 1 {
			t.Error("expected site override from file")
		}
	})

	t.Run("dotenv file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Cleanup(func() { _ = os.Unsetenv("REVIEWGATE_TENCENT_KEY") })

		if err := os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte("REVIEWGATE_TENCENT_KEY=tencent-from-dotenv\n"), 0o600); err != nil {
			t.Fatalf("failed to write .env: %v", err)
		}

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TencentKey != "tencent-from-dotenv" {
			t.Errorf("expected key from .env, got %q", cfg.TencentKey)
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Run("returns explicit path if exists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("prefers the working directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		want := filepath.Join(dir, DefaultConfigFile)
		if err := os.WriteFile(want, []byte("max_pages: 1\n"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(""); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if filepath.Base(dir) != AppName {
				t.Errorf("expected %s dir to end in %q, got %q", name, AppName, dir)
			}
		})
	}
}
