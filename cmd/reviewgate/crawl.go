package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/reviewgate/internal/config"
	"github.com/nao1215/reviewgate/internal/log"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/pipeline"
	"github.com/nao1215/reviewgate/internal/report"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [venue-name-or-url...]",
		Short: "Collect anonymized reviews for one or more venues",
		Long: `Crawl resolves each venue, walks its review listing and stores an
anonymized bundle of recent reviews.

Each target is either a venue name, searched in --city, or the URL of a
review listing. Every request is checked against robots.txt and paced per
domain; all sessions in one run share the same pacing budget. A session
stops at the first robots exclusion or exhausted rate limit and keeps the
records collected so far.

Examples:
  # Crawl one venue by name
  reviewgate crawl 全聚德 --city 北京

  # Crawl a review listing directly
  reviewgate crawl https://www.dianping.com/shop/123/review_all

  # Three pages at most, reviews from the last 3 months
  reviewgate crawl 全聚德 -C 北京 -p 3 --months 3

  # Also write bundle files and print a Markdown report
  reviewgate crawl 全聚德 -C 北京 --export-dir ./bundles -m

Configuration file (.reviewgate) example:
  purpose: academic
  min_delay: 6s
  sites:
    www.dianping.com:
      cookie: "_lxsdk_cuid=..."
      max_pages: 3`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().String("purpose", config.DefaultPurpose,
		"Collection purpose: research, learning or academic")
	cmd.Flags().String("platform", config.DefaultPlatform,
		"Review platform")

	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of listing pages per session")
	cmd.Flags().Int("max-records", config.DefaultMaxRecordsTotal,
		"Maximum number of records per session")
	cmd.Flags().Int("per-page-cap", config.DefaultPerPageRecordCap,
		"Maximum number of records taken from one page")
	cmd.Flags().Int("months", config.DefaultTimeRangeMonths,
		"Drop reviews older than this many months")
	cmd.Flags().Duration("min-delay", config.DefaultMinDelay,
		"Minimum delay between requests to one domain")
	cmd.Flags().Int("retention-days", config.DefaultRetentionDays,
		"Days a stored bundle is kept before purge")

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent sessions")

	cmd.Flags().String("export-dir", "",
		"Also write each bundle as a file into this directory")
	cmd.Flags().String("export-format", config.DefaultExportFormat,
		"Bundle file format: json or yaml")
	cmd.Flags().Bool("no-db", false,
		"Do not store bundles in the database")

	addConfigFlag(cmd)
	addNetworkFlags(cmd)
	addDBFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// buildCrawlConfig loads the configuration and applies crawl flags.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	err = errors.Join(
		setFlag(fs, "purpose", &cfg.Purpose, fs.GetString),
		setFlag(fs, "platform", &cfg.Platform, fs.GetString),
		setFlag(fs, "max-pages", &cfg.MaxPages, fs.GetInt),
		setFlag(fs, "max-records", &cfg.MaxRecordsTotal, fs.GetInt),
		setFlag(fs, "per-page-cap", &cfg.PerPageRecordCap, fs.GetInt),
		setFlag(fs, "months", &cfg.TimeRangeMonths, fs.GetInt),
		setFlag(fs, "min-delay", &cfg.MinDelay, fs.GetDuration),
		setFlag(fs, "retention-days", &cfg.RetentionDays, fs.GetInt),
		setFlag(fs, "batch", &cfg.BatchSize, fs.GetInt),
		setFlag(fs, "export-dir", &cfg.ExportDir, fs.GetString),
		setFlag(fs, "export-format", &cfg.ExportFormat, fs.GetString),
		applyNetworkFlags(fs, cfg),
		applyDBFlags(fs, cfg),
		applyReportFlags(fs, cfg),
	)
	if err != nil {
		return nil, err
	}

	noDB, err := fs.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if noDB {
		cfg.SaveToDB = false
	}

	cfg.Targets = args
	return cfg, nil
}

// runCrawl runs one session per target and writes the report to stdout or
// the configured report file. Progress lines go to stderr.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return errors.New("no targets provided (specify one or more venue names or review listing URLs)")
	}

	purpose, err := model.ParsePurpose(cfg.Purpose)
	if err != nil {
		return err
	}
	platform, err := model.ParsePlatform(cfg.Platform)
	if err != nil {
		return err
	}

	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"purpose", purpose,
		"platform", platform,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	gate, err := newGate(cfg, logger)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	router, err := newSessionRouter(cfg, gate, sinks, logger)
	if err != nil {
		return err
	}

	reqs := make([]pipeline.Request, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		reqs = append(reqs, pipeline.Request{
			Target:   target,
			City:     cfg.City,
			Purpose:  purpose,
			Platform: platform,
		})
	}

	fmt.Fprintf(stderr, "Crawling %d target(s) (concurrency: %d)...\n", len(reqs), cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(router,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	results := make([]*model.SessionResult, len(reqs))
	var mu sync.Mutex
	bp.ProcessBatchWithCallback(ctx, reqs, func(result *model.SessionResult, index int) {
		results[index] = result

		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(stderr, "[%d/%d] %s: %s (%s), %d record(s)\n",
			index+1, len(reqs), result.State.Target,
			result.State.Status, result.State.Reason, result.State.RecordsCollected)
	})

	fmt.Fprintf(stderr, "Crawl finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	sessionReport := report.NewSessionReport(results, gate.Report(), time.Now())
	if err := writeReport(cfg, stdout, func(w report.Writer) (int, error) {
		return w.Write(sessionReport)
	}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if sessionReport.HasPersistErrors() {
		return errors.New("one or more bundles could not be persisted")
	}
	if sessionReport.CompletedCount() == 0 {
		return fmt.Errorf("no session completed (%d aborted)", sessionReport.AbortedCount())
	}
	return nil
}
