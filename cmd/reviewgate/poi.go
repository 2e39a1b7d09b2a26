package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/config"
	"github.com/nao1215/reviewgate/internal/crawler"
	"github.com/nao1215/reviewgate/internal/log"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/poi"
	"github.com/nao1215/reviewgate/internal/report"
	"github.com/spf13/cobra"
)

// errNoPOISources is returned when no map platform has an API key.
var errNoPOISources = errors.New("no map API keys configured (set REVIEWGATE_AMAP_KEY, REVIEWGATE_BAIDU_KEY or REVIEWGATE_TENCENT_KEY)")

// NewPOICmd creates the poi command.
func NewPOICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poi <keyword>",
		Short: "Search venues across map platforms",
		Long: `POI searches every map platform that has an API key configured and
merges the results. Venues listed by more than one platform are reported once.

API keys are read from the configuration file or from REVIEWGATE_AMAP_KEY,
REVIEWGATE_BAIDU_KEY and REVIEWGATE_TENCENT_KEY.

Examples:
  reviewgate poi 烤鸭 --city 北京
  reviewgate poi 烤鸭 -C 北京 --limit 10 -j`,
		Args: cobra.ExactArgs(1),
		RunE: runPOICmd,
	}

	cmd.Flags().IntP("limit", "l", poi.DefaultLimit,
		"Maximum number of results requested from each platform")

	addConfigFlag(cmd)
	addNetworkFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runPOICmd executes the poi command.
func runPOICmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	if err := errors.Join(applyNetworkFlags(fs, cfg), applyReportFlags(fs, cfg)); err != nil {
		return err
	}
	limit, err := fs.GetInt("limit")
	if err != nil {
		return err
	}

	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	gate, err := newGate(cfg, logger)
	if err != nil {
		return err
	}
	sources, err := newPOISources(cfg, gate, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runPOI(ctx, cfg, args[0], sources, limit, cmd.OutOrStdout(), logger)
}

// newPOISources creates an API source for every platform with a key.
func newPOISources(cfg *config.Config, gate *compliance.Gate, logger *slog.Logger) ([]poi.Source, error) {
	client, err := crawler.NewHTTPClient(crawler.ClientConfig{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	fetcher := crawler.NewHTTPFetcher(client,
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithRequestsPerSecond(cfg.RequestsPerSecond),
		crawler.WithRedirectGate(gate, crawler.DefaultMaxRedirects),
	)

	keys := []struct {
		platform model.Platform
		key      string
	}{
		{model.PlatformAmap, cfg.AmapKey},
		{model.PlatformBaidu, cfg.BaiduKey},
		{model.PlatformTencent, cfg.TencentKey},
	}

	sources := make([]poi.Source, 0, len(keys))
	for _, k := range keys {
		source, err := poi.NewAPISource(k.platform, k.key, gate, fetcher,
			poi.WithSourceUserAgent(cfg.UserAgent))
		if errors.Is(err, poi.ErrMissingKey) {
			logger.Debug("map platform skipped, no api key", "platform", k.platform)
			continue
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// runPOI searches all sources and writes the merged result.
func runPOI(ctx context.Context, cfg *config.Config, keyword string, sources []poi.Source, limit int, stdout io.Writer, logger *slog.Logger) error {
	if len(sources) == 0 {
		return errNoPOISources
	}

	result := poi.NewAggregator(sources, poi.WithLimit(limit), poi.WithLogger(logger)).
		Aggregate(ctx, keyword, cfg.City)

	if err := writeReport(cfg, stdout, func(w report.Writer) (int, error) {
		return w.WritePOI(result)
	}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	for _, s := range result.Sources {
		if s.Error == "" {
			return nil
		}
	}
	return errors.New("every map platform failed")
}
