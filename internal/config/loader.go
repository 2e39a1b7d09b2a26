package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".reviewgate"

// EnvPrefix is the prefix of environment overrides, e.g. REVIEWGATE_MAX_PAGES.
const EnvPrefix = "REVIEWGATE"

// DefaultEnvFile is the dotenv file loaded from the working directory.
const DefaultEnvFile = ".env"

// Option keys shared by the config file and the environment.
const (
	KeyCity              = "city"
	KeyPurpose           = "purpose"
	KeyPlatform          = "platform"
	KeyMinDelay          = "min_delay"
	KeyMaxPerMinute      = "max_requests_per_minute"
	KeyMaxPerHour        = "max_requests_per_hour"
	KeyMaxPerDay         = "max_requests_per_day"
	KeyMaxPages          = "max_pages"
	KeyMaxRecordsTotal   = "max_records_total"
	KeyPerPageRecordCap  = "per_page_record_cap"
	KeyTimeRangeMonths   = "time_range_months"
	KeyRetentionDays     = "retention_days"
	KeyUserAgent         = "user_agent"
	KeyTimeout           = "timeout"
	KeyRobotsTTL         = "robots_ttl"
	KeyProxy             = "proxy"
	KeyRequestsPerSecond = "requests_per_second"
	KeyBatch             = "batch"
	KeyDBDriver          = "db_driver"
	KeyDBDSN             = "db_dsn"
	KeyDBDir             = "db_dir"
	KeyExportDir         = "export_dir"
	KeyExportFormat      = "export_format"
	KeyAmapKey           = "amap_key"
	KeyBaiduKey          = "baidu_key"
	KeyTencentKey        = "tencent_key"
)

// Load builds a Config from defaults, the config file and the environment.
//
// A .env file in the working directory is loaded first; variables already
// set in the process environment win over it. The config file is configPath
// when given, otherwise the first .reviewgate found by FindConfigFile.
// REVIEWGATE_* variables override file values. An explicit configPath that
// does not exist returns ErrConfigNotFound.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	path := FindConfigFile(configPath)
	if configPath != "" && path == "" {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	cfg.ConfigFilePath = path

	if path != "" {
		sites, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.SiteConfigs = sites
	}

	return cfg, nil
}

// loadDotEnv loads a dotenv file if it exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := NewConfig()
	v.SetDefault(KeyCity, d.City)
	v.SetDefault(KeyPurpose, d.Purpose)
	v.SetDefault(KeyPlatform, d.Platform)
	v.SetDefault(KeyMinDelay, d.MinDelay)
	v.SetDefault(KeyMaxPerMinute, d.MaxPerMinute)
	v.SetDefault(KeyMaxPerHour, d.MaxPerHour)
	v.SetDefault(KeyMaxPerDay, d.MaxPerDay)
	v.SetDefault(KeyMaxPages, d.MaxPages)
	v.SetDefault(KeyMaxRecordsTotal, d.MaxRecordsTotal)
	v.SetDefault(KeyPerPageRecordCap, d.PerPageRecordCap)
	v.SetDefault(KeyTimeRangeMonths, d.TimeRangeMonths)
	v.SetDefault(KeyRetentionDays, d.RetentionDays)
	v.SetDefault(KeyUserAgent, d.UserAgent)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyRobotsTTL, d.RobotsTTL)
	v.SetDefault(KeyProxy, d.Proxy)
	v.SetDefault(KeyRequestsPerSecond, d.RequestsPerSecond)
	v.SetDefault(KeyBatch, d.BatchSize)
	v.SetDefault(KeyDBDriver, d.DBDriver)
	v.SetDefault(KeyDBDSN, d.DBDSN)
	v.SetDefault(KeyDBDir, d.DBDir)
	v.SetDefault(KeyExportDir, d.ExportDir)
	v.SetDefault(KeyExportFormat, d.ExportFormat)
	v.SetDefault(KeyAmapKey, "")
	v.SetDefault(KeyBaiduKey, "")
	v.SetDefault(KeyTencentKey, "")
}

func fromViper(v *viper.Viper) *Config {
	cfg := NewConfig()
	cfg.City = v.GetString(KeyCity)
	cfg.Purpose = v.GetString(KeyPurpose)
	cfg.Platform = v.GetString(KeyPlatform)
	cfg.MinDelay = v.GetDuration(KeyMinDelay)
	cfg.MaxPerMinute = v.GetInt(KeyMaxPerMinute)
	cfg.MaxPerHour = v.GetInt(KeyMaxPerHour)
	cfg.MaxPerDay = v.GetInt(KeyMaxPerDay)
	cfg.MaxPages = v.GetInt(KeyMaxPages)
	cfg.MaxRecordsTotal = v.GetInt(KeyMaxRecordsTotal)
	cfg.PerPageRecordCap = v.GetInt(KeyPerPageRecordCap)
	cfg.TimeRangeMonths = v.GetInt(KeyTimeRangeMonths)
	cfg.RetentionDays = v.GetInt(KeyRetentionDays)
	cfg.UserAgent = v.GetString(KeyUserAgent)
	cfg.Timeout = v.GetDuration(KeyTimeout)
	cfg.RobotsTTL = v.GetDuration(KeyRobotsTTL)
	cfg.Proxy = v.GetString(KeyProxy)
	cfg.RequestsPerSecond = v.GetFloat64(KeyRequestsPerSecond)
	cfg.BatchSize = v.GetInt(KeyBatch)
	cfg.DBDriver = v.GetString(KeyDBDriver)
	cfg.DBDSN = v.GetString(KeyDBDSN)
	cfg.DBDir = v.GetString(KeyDBDir)
	cfg.ExportDir = v.GetString(KeyExportDir)
	cfg.ExportFormat = v.GetString(KeyExportFormat)
	cfg.AmapKey = v.GetString(KeyAmapKey)
	cfg.BaiduKey = v.GetString(KeyBaiduKey)
	cfg.TencentKey = v.GetString(KeyTencentKey)
	return cfg
}

// LoadConfigFile loads the per-site sections of a YAML config file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for host, site := range cf.Sites {
		sites[strings.ToLower(host)] = site
	}
	cf.Sites = sites

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .reviewgate in the current directory
// 3. Look for config.yaml in the XDG config directory
// 4. Look for .reviewgate in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
