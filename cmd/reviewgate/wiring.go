package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/config"
	"github.com/nao1215/reviewgate/internal/crawler"
	"github.com/nao1215/reviewgate/internal/database"
	"github.com/nao1215/reviewgate/internal/export"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/pipeline"
	"github.com/nao1215/reviewgate/internal/redact"
	"github.com/nao1215/reviewgate/internal/report"
	"github.com/nao1215/reviewgate/internal/resolve"
)

// siteConfig returns the merged site settings for host.
func siteConfig(cfg *config.Config, host string) config.SiteConfig {
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	return cfg.SiteConfigs.GetSiteConfig(host)
}

// newGate creates the process-wide compliance gate. Per-site min_delay
// settings become per-domain delays.
func newGate(cfg *config.Config, logger *slog.Logger) (*compliance.Gate, error) {
	client, err := crawler.NewHTTPClient(crawler.ClientConfig{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create robots client: %w", err)
	}

	limits := compliance.Limits{
		MinDelay:     cfg.MinDelay,
		MaxPerMinute: cfg.MaxPerMinute,
		MaxPerHour:   cfg.MaxPerHour,
		MaxPerDay:    cfg.MaxPerDay,
	}

	opts := []compliance.Option{
		compliance.WithRobotsFetcher(compliance.NewHTTPRobotsFetcher(client)),
		compliance.WithRobotsTTL(cfg.RobotsTTL),
		compliance.WithLogger(logger),
	}
	if cfg.SiteConfigs != nil {
		limits.MinDelay = max(limits.MinDelay, cfg.SiteConfigs.Defaults.MinDelay)
		for host, site := range cfg.SiteConfigs.Sites {
			opts = append(opts, compliance.WithDomainMinDelay(host, site.MinDelay))
		}
	}
	opts = append(opts, compliance.WithLimits(limits))

	return compliance.NewGate(opts...), nil
}

// openDB opens the configured CrawlDB.
func openDB(ctx context.Context, cfg *config.Config) (*database.CrawlDB, error) {
	dsn := cfg.DBDir
	if cfg.DBDriver == database.DriverPostgres {
		dsn = cfg.DBDSN
	}
	db, err := database.OpenDriver(ctx, cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// namedSink pairs a sink with its log label.
type namedSink struct {
	name string
	sink pipeline.Sink
}

// openSinks opens the database and file sinks enabled in cfg. The returned
// function closes whatever was opened.
func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]namedSink, func(), error) {
	var sinks []namedSink
	closeAll := func() {}

	if cfg.SaveToDB {
		db, err := openDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database opened", "driver", db.Driver(), "path", db.Path())
		sinks = append(sinks, namedSink{name: "db", sink: db})
		closeAll = func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}
	}

	if cfg.ExportDir != "" {
		format, err := export.ParseFormat(cfg.ExportFormat)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, namedSink{
			name: "file",
			sink: export.NewFileSink(cfg.ExportDir, export.WithFormat(format)),
		})
	}

	return sinks, closeAll, nil
}

// sessionRouter runs each request with the crawl session built for the
// request's site. All sessions share one compliance gate.
type sessionRouter struct {
	searchHost string
	sessions   map[string]*pipeline.CrawlSession
}

// newSessionRouter builds one crawl session per site named by cfg.Targets.
func newSessionRouter(cfg *config.Config, gate *compliance.Gate, sinks []namedSink, logger *slog.Logger) (*sessionRouter, error) {
	searchURL := resolve.DefaultSearchURL
	if cfg.SiteConfigs != nil && cfg.SiteConfigs.Defaults.SearchURL != "" {
		searchURL = cfg.SiteConfigs.Defaults.SearchURL
	}

	r := &sessionRouter{
		searchHost: hostOf(searchURL),
		sessions:   make(map[string]*pipeline.CrawlSession),
	}

	for _, target := range cfg.Targets {
		host := r.host(target)
		if _, ok := r.sessions[host]; ok {
			continue
		}
		session, err := newCrawlSession(cfg, host, gate, sinks, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up session for %s: %w", host, err)
		}
		r.sessions[host] = session
	}
	return r, nil
}

// Run runs req with the session for its site.
func (r *sessionRouter) Run(ctx context.Context, req pipeline.Request) *model.SessionResult {
	return r.sessions[r.host(req.Target)].Run(ctx, req)
}

// host returns the site a target is fetched from. Venue names are searched
// on the search host.
func (r *sessionRouter) host(target string) string {
	if h := hostOf(strings.TrimSpace(target)); h != "" {
		return h
	}
	return r.searchHost
}

// hostOf returns the lower-case host of an absolute http(s) URL, or "".
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// newCrawlSession wires a fetcher, crawler and resolver for one site.
func newCrawlSession(cfg *config.Config, host string, gate *compliance.Gate, sinks []namedSink, logger *slog.Logger) (*pipeline.CrawlSession, error) {
	hostCfg := cfg.ForHost(host)
	site := siteConfig(cfg, host)

	client, err := crawler.NewHTTPClient(crawler.ClientConfig{
		Timeout:      hostCfg.Timeout,
		ProxyAddress: hostCfg.Proxy,
		Cookie:       site.Cookie,
		Headers:      site.Headers,
	})
	if err != nil {
		return nil, err
	}

	fetcher := crawler.NewHTTPFetcher(client,
		crawler.WithUserAgent(hostCfg.UserAgent),
		crawler.WithRequestsPerSecond(hostCfg.RequestsPerSecond),
		crawler.WithRedirectGate(gate, crawler.DefaultMaxRedirects),
	)

	pager := crawler.NewPaginationCrawler(gate, fetcher, crawler.NewAutoParser(), redact.New(),
		crawler.WithCrawlLimits(crawler.Limits{
			MaxPages:         hostCfg.MaxPages,
			MaxRecordsTotal:  hostCfg.MaxRecordsTotal,
			PerPageRecordCap: hostCfg.PerPageRecordCap,
		}),
		crawler.WithCrawlerUserAgent(hostCfg.UserAgent),
		crawler.WithCrawlLogger(logger),
	)

	resolver := resolve.NewHTMLResolver(gate, fetcher,
		resolve.WithSearchURL(site.SearchURL),
		resolve.WithUserAgent(hostCfg.UserAgent),
		resolve.WithLogger(logger),
	)

	opts := []pipeline.SessionOption{
		pipeline.WithRetention(hostCfg.Retention()),
		pipeline.WithTimeRangeMonths(hostCfg.TimeRangeMonths),
		pipeline.WithSessionLogger(logger),
	}
	for _, s := range sinks {
		opts = append(opts, pipeline.WithSink(s.name, s.sink))
	}

	return pipeline.NewCrawlSession(resolver, pager, opts...), nil
}

// newReportWriter returns the report writer selected by cfg.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// writeReport opens the report destination and calls write with the
// selected writer.
func writeReport(cfg *config.Config, stdout io.Writer, write func(report.Writer) (int, error)) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name venues and session IDs, so only the owner may read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := write(newReportWriter(cfg, output))
	return err
}
