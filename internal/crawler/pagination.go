package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/dedup"
	"github.com/nao1215/reviewgate/internal/model"
	"github.com/nao1215/reviewgate/internal/redact"
)

// Crawl limit defaults.
const (
	DefaultMaxPages         = 5
	DefaultMaxRecordsTotal  = 500
	DefaultPerPageRecordCap = 50
	DefaultGateRetries      = 3
	DefaultFetchRetries     = 3
	DefaultBackoffBase      = 2 * time.Second
	DefaultMaxBackoff       = time.Minute
)

// Gate grants permission for one request.
// *compliance.Gate implements it.
type Gate interface {
	Admit(ctx context.Context, rawURL, userAgent string) (compliance.Permit, error)
}

// Limits bound a single crawl.
type Limits struct {
	// MaxPages is the maximum number of pages fetched.
	MaxPages int

	// MaxRecordsTotal is the maximum number of records accepted.
	MaxRecordsTotal int

	// PerPageRecordCap is the maximum number of records accepted per page.
	PerPageRecordCap int
}

// DefaultLimits returns the default crawl limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPages:         DefaultMaxPages,
		MaxRecordsTotal:  DefaultMaxRecordsTotal,
		PerPageRecordCap: DefaultPerPageRecordCap,
	}
}

// Result is what one crawl produced.
type Result struct {
	// Records are the accepted records in acceptance order.
	Records []model.AnonymizedReview

	// Stats are the crawl counters.
	Stats model.CrawlStats
}

// PaginationCrawler walks a paginated review listing one page at a time.
//
// Every request goes through the gate. Records are anonymized by the
// redaction engine and deduplicated by content hash before they are
// accepted. A crawler holds no per-crawl state and can run several crawls
// concurrently.
type PaginationCrawler struct {
	gate    Gate
	fetcher Fetcher
	parser  Parser
	engine  *redact.Engine

	limits       Limits
	gateRetries  int
	fetchRetries int
	backoffBase  time.Duration
	maxBackoff   time.Duration
	userAgent    string
	clock        compliance.Clock
	logger       *slog.Logger
}

// CrawlerOption configures a PaginationCrawler.
type CrawlerOption func(*PaginationCrawler)

// WithCrawlLimits sets the page and record limits. Non-positive fields keep
// their defaults.
func WithCrawlLimits(limits Limits) CrawlerOption {
	return func(c *PaginationCrawler) {
		if limits.MaxPages > 0 {
			c.limits.MaxPages = limits.MaxPages
		}
		if limits.MaxRecordsTotal > 0 {
			c.limits.MaxRecordsTotal = limits.MaxRecordsTotal
		}
		if limits.PerPageRecordCap > 0 {
			c.limits.PerPageRecordCap = limits.PerPageRecordCap
		}
	}
}

// WithGateRetries sets how many times a rate-limited page is attempted.
func WithGateRetries(n int) CrawlerOption {
	return func(c *PaginationCrawler) {
		if n > 0 {
			c.gateRetries = n
		}
	}
}

// WithFetchRetries sets how many times a page fetch is attempted.
func WithFetchRetries(n int) CrawlerOption {
	return func(c *PaginationCrawler) {
		if n > 0 {
			c.fetchRetries = n
		}
	}
}

// WithBackoff sets the base and the ceiling of the exponential backoff
// between attempts.
func WithBackoff(base, ceiling time.Duration) CrawlerOption {
	return func(c *PaginationCrawler) {
		if base >= 0 {
			c.backoffBase = base
		}
		if ceiling >= base {
			c.maxBackoff = ceiling
		}
	}
}

// WithCrawlerUserAgent sets the user agent presented to robots checks.
// It should match the fetcher's User-Agent.
func WithCrawlerUserAgent(ua string) CrawlerOption {
	return func(c *PaginationCrawler) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCrawlClock replaces the clock used for backoff and record times.
func WithCrawlClock(clock compliance.Clock) CrawlerOption {
	return func(c *PaginationCrawler) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCrawlLogger sets the logger.
func WithCrawlLogger(logger *slog.Logger) CrawlerOption {
	return func(c *PaginationCrawler) {
		c.logger = logger
	}
}

// NewPaginationCrawler creates a crawler from its collaborators.
func NewPaginationCrawler(gate Gate, fetcher Fetcher, parser Parser, engine *redact.Engine, opts ...CrawlerOption) *PaginationCrawler {
	c := &PaginationCrawler{
		gate:         gate,
		fetcher:      fetcher,
		parser:       parser,
		engine:       engine,
		limits:       DefaultLimits(),
		gateRetries:  DefaultGateRetries,
		fetchRetries: DefaultFetchRetries,
		backoffBase:  DefaultBackoffBase,
		maxBackoff:   DefaultMaxBackoff,
		userAgent:    DefaultUserAgent,
		clock:        compliance.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = redact.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Limits returns the effective crawl limits.
func (c *PaginationCrawler) Limits() Limits {
	return c.limits
}

// phase is a state of the pagination state machine.
type phase int

const (
	phaseInit phase = iota
	phaseFetching
	phaseParsing
	phaseRedacting
	phaseDeciding
	phaseDone
)

// String returns the phase name for logging.
func (p phase) String() string {
	switch p {
	case phaseInit:
		return "init"
	case phaseFetching:
		return "fetching"
	case phaseParsing:
		return "parsing"
	case phaseRedacting:
		return "redacting"
	case phaseDeciding:
		return "deciding"
	case phaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// crawlRun is the mutable state of one Crawl call.
type crawlRun struct {
	c      *PaginationCrawler
	state  *model.SessionState
	cutoff time.Time
	logger *slog.Logger

	index   *dedup.Index
	visited map[string]bool
	result  Result

	// per-page state, reset in Deciding
	pageURL       string
	page          *model.Page
	parsed        *ParseResult
	cutoffReached bool
}

// Crawl walks the listing starting at startURL and records progress on
// state. Records whose parsed time is before cutoff are dropped and stop
// further pagination; a zero cutoff disables the check.
//
// Crawl never fails: when it returns, state is terminal (completed or
// aborted with a reason) and the result holds every record accepted so far.
func (c *PaginationCrawler) Crawl(ctx context.Context, state *model.SessionState, startURL string, cutoff time.Time) *Result {
	r := &crawlRun{
		c:       c,
		state:   state,
		cutoff:  cutoff,
		logger:  c.logger.With("session_id", state.SessionID),
		index:   dedup.New(),
		visited: make(map[string]bool),
		pageURL: startURL,
		result:  Result{Records: make([]model.AnonymizedReview, 0)},
	}

	p := phaseInit
	for p != phaseDone {
		switch p {
		case phaseInit:
			p = r.admit(ctx)
		case phaseFetching:
			p = r.fetch(ctx)
		case phaseParsing:
			p = r.parse()
		case phaseRedacting:
			p = r.redact(ctx)
		case phaseDeciding:
			p = r.decide(ctx)
		default:
			p = r.finish(model.SessionAborted, "invalid crawler state "+p.String())
		}
	}

	r.logger.Info("crawl finished",
		"status", state.Status,
		"reason", state.Reason,
		"pages", state.PagesFetched,
		"records", state.RecordsCollected,
		"requests", state.RequestsIssued,
	)
	return &r.result
}

// finish marks the state terminal and ends the machine.
func (r *crawlRun) finish(status model.SessionStatus, reason string) phase {
	r.state.Finish(status, reason, r.c.clock.Now())
	return phaseDone
}

// admit obtains a gate permit for the current page.
func (r *crawlRun) admit(ctx context.Context) phase {
	if ctx.Err() != nil {
		return r.finish(model.SessionAborted, model.ReasonCancelled)
	}

	key := normalizeURL(r.pageURL)
	if r.visited[key] {
		r.logger.Warn("pagination loop detected", "url", r.pageURL)
		return r.finish(model.SessionCompleted, model.ReasonNoMorePages)
	}
	r.visited[key] = true

	if next, ok := r.acquire(ctx); !ok {
		return next
	}
	return phaseFetching
}

// acquire asks the gate for a permit, retrying rate limit denials with
// backoff. It returns false with the next phase when no permit was granted.
func (r *crawlRun) acquire(ctx context.Context) (phase, bool) {
	for attempt := 1; ; attempt++ {
		_, err := r.c.gate.Admit(ctx, r.pageURL, r.c.userAgent)
		if err == nil {
			r.state.RequestsIssued++
			return phaseFetching, true
		}

		switch {
		case ctx.Err() != nil:
			return r.finish(model.SessionAborted, model.ReasonCancelled), false

		case errors.Is(err, compliance.ErrRobotsExcluded):
			r.logger.Warn("target excluded by robots.txt", "url", r.pageURL)
			return r.finish(model.SessionAborted, model.ReasonRobotsExcluded), false

		case errors.Is(err, compliance.ErrInvalidURL):
			r.logger.Error("invalid page url", "url", r.pageURL, "error", err)
			return r.finish(model.SessionAborted, model.ReasonInvalidRequest), false

		case errors.Is(err, compliance.ErrRateLimited):
			if attempt >= r.c.gateRetries {
				r.logger.Warn("rate limit retries exhausted", "url", r.pageURL, "attempts", attempt)
				return r.finish(model.SessionAborted, model.ReasonRateLimited), false
			}
			r.result.Stats.RateLimitRetries++

			wait := r.c.backoff(attempt)
			var denied *compliance.DeniedError
			if errors.As(err, &denied) && denied.RetryAfter > wait {
				wait = min(denied.RetryAfter, r.c.maxBackoff)
			}
			r.logger.Info("rate limited, backing off", "url", r.pageURL, "attempt", attempt, "wait", wait)
			if err := r.c.clock.Sleep(ctx, wait); err != nil {
				return r.finish(model.SessionAborted, model.ReasonCancelled), false
			}

		default:
			r.logger.Error("gate check failed", "url", r.pageURL, "error", err)
			return r.finish(model.SessionAborted, model.ReasonInvalidRequest), false
		}
	}
}

// fetch retrieves the current page. A page that keeps failing is skipped.
func (r *crawlRun) fetch(ctx context.Context) phase {
	for attempt := 1; ; attempt++ {
		page, err := r.c.fetcher.Fetch(ctx, r.pageURL)
		if err == nil {
			r.page = page
			r.state.PagesFetched++
			r.logger.Debug("page fetched", "url", r.pageURL, "status", page.StatusCode, "bytes", len(page.Raw))
			return phaseParsing
		}
		if ctx.Err() != nil {
			return r.finish(model.SessionAborted, model.ReasonCancelled)
		}
		if errors.Is(err, compliance.ErrRobotsExcluded) {
			r.logger.Warn("redirect excluded by robots.txt", "url", r.pageURL, "error", err)
			return r.finish(model.SessionAborted, model.ReasonRobotsExcluded)
		}

		if !isRetryable(err) || attempt >= r.c.fetchRetries {
			r.result.Stats.TransportFailures++
			r.logger.Warn("skipping page after fetch failure", "url", r.pageURL, "attempts", attempt, "error", err)
			return phaseDeciding
		}

		wait := r.c.backoff(attempt)
		r.logger.Info("fetch failed, retrying", "url", r.pageURL, "attempt", attempt, "wait", wait, "error", err)
		if err := r.c.clock.Sleep(ctx, wait); err != nil {
			return r.finish(model.SessionAborted, model.ReasonCancelled)
		}

		// Every attempt is a request and needs its own permit.
		if next, ok := r.acquire(ctx); !ok {
			return next
		}
	}
}

// parse extracts raw records from the fetched page.
func (r *crawlRun) parse() phase {
	parsed, err := r.c.parser.Parse(r.page)
	if err != nil {
		r.result.Stats.ParseFailures++
		r.logger.Warn("skipping unparseable page", "url", r.pageURL, "error", err)
		return phaseDeciding
	}
	r.parsed = parsed
	r.result.Stats.RawRecords += len(parsed.Reviews)
	return phaseRedacting
}

// redact anonymizes, deduplicates and caps the page's records.
func (r *crawlRun) redact(ctx context.Context) phase {
	// A page fetched while the session was being cancelled is discarded.
	if ctx.Err() != nil {
		return r.finish(model.SessionAborted, model.ReasonCancelled)
	}

	stats := &r.result.Stats
	ref := r.c.clock.Now()
	accepted := 0

	for _, raw := range r.parsed.Reviews {
		if !r.cutoff.IsZero() {
			if at, ok := redact.ParseTime(raw.RawTime, ref); ok && at.Before(r.cutoff) {
				stats.CutoffDropped++
				r.cutoffReached = true
				continue
			}
		}

		out, err := r.c.engine.Anonymize(raw, ref)
		if out.Scrubbed {
			stats.SensitiveScrubbed++
		}
		switch {
		case errors.Is(err, redact.ErrSensitiveContentRejected):
			stats.SensitiveRejected++
			continue
		case errors.Is(err, redact.ErrContentTooShort):
			stats.ShortDropped++
			continue
		case err != nil:
			stats.SensitiveRejected++
			continue
		}

		if !r.index.TryInsert(out.Record.ContentHash) {
			stats.DuplicatesDropped++
			continue
		}
		if accepted >= r.c.limits.PerPageRecordCap || r.state.RecordsCollected >= r.c.limits.MaxRecordsTotal {
			stats.CapDropped++
			continue
		}

		r.result.Records = append(r.result.Records, out.Record)
		r.state.RecordsCollected++
		accepted++
	}

	r.logger.Debug("page processed",
		"url", r.pageURL,
		"raw", len(r.parsed.Reviews),
		"accepted", accepted,
		"cutoff_reached", r.cutoffReached,
	)
	return phaseDeciding
}

// decide chooses between the next page and stopping.
func (r *crawlRun) decide(ctx context.Context) phase {
	if ctx.Err() != nil {
		return r.finish(model.SessionAborted, model.ReasonCancelled)
	}
	if r.state.RecordsCollected >= r.c.limits.MaxRecordsTotal {
		r.logger.Debug("stopping", "cause", ErrCapReached)
		return r.finish(model.SessionCompleted, model.ReasonMaxRecords)
	}
	if r.cutoffReached {
		return r.finish(model.SessionCompleted, model.ReasonTimeCutoff)
	}

	var next string
	if r.parsed != nil {
		next = r.parsed.NextURL
	}
	if next == "" {
		return r.finish(model.SessionCompleted, model.ReasonNoMorePages)
	}
	if r.state.PagesFetched >= r.c.limits.MaxPages {
		return r.finish(model.SessionCompleted, model.ReasonMaxPages)
	}

	r.pageURL = next
	r.page = nil
	r.parsed = nil
	return phaseInit
}

// backoff returns the exponential delay before attempt+1.
func (c *PaginationCrawler) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 1; i < attempt && d < c.maxBackoff; i++ {
		d *= 2
	}
	return min(d, c.maxBackoff)
}

// normalizeURL normalizes a URL for loop detection.
// The fragment is dropped and scheme and host are lowercased.
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
