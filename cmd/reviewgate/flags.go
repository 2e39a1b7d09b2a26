package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/reviewgate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig loads the configuration named by --config, or the first
// .reviewgate found, and records the verbose flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// setFlag copies an explicitly set flag into dst. Flags left at their
// default do not override values from the config file or environment.
func setFlag[T any](fs *pflag.FlagSet, name string, dst *T, get func(string) (T, error)) error {
	if fs.Lookup(name) == nil || !fs.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .reviewgate in current, XDG config or home directory)")
}

func addDBFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", config.DefaultDBDriver,
		"Database driver: sqlite or postgres")
	cmd.Flags().String("db-dsn", "",
		"PostgreSQL connection string (postgres driver only)")
	cmd.Flags().String("db-dir", "",
		"SQLite data directory (default: XDG data directory)")
}

func applyDBFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	return errors.Join(
		setFlag(fs, "db-driver", &cfg.DBDriver, fs.GetString),
		setFlag(fs, "db-dsn", &cfg.DBDSN, fs.GetString),
		setFlag(fs, "db-dir", &cfg.DBDir, fs.GetString),
	)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

func applyReportFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	return errors.Join(
		setFlag(fs, "json", &cfg.JSONReport, fs.GetBool),
		setFlag(fs, "markdown", &cfg.MarkdownReport, fs.GetBool),
		setFlag(fs, "output", &cfg.ReportFile, fs.GetString),
	)
}

func addNetworkFlags(cmd *cobra.Command) {
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent presented to sites and robots.txt")
	cmd.Flags().StringP("city", "C", "",
		"City used to narrow searches")
}

func applyNetworkFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	return errors.Join(
		setFlag(fs, "timeout", &cfg.Timeout, fs.GetDuration),
		setFlag(fs, "proxy", &cfg.Proxy, fs.GetString),
		setFlag(fs, "user-agent", &cfg.UserAgent, fs.GetString),
		setFlag(fs, "city", &cfg.City, fs.GetString),
	)
}
