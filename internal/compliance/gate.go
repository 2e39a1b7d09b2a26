package compliance

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/reviewgate/internal/model"
	"github.com/temoto/robotstxt"
)

// Tracked windows. The largest one bounds how long permits are remembered.
const (
	windowMinute = time.Minute
	windowHour   = time.Hour
	windowDay    = 24 * time.Hour
)

// Default pacing limits.
const (
	DefaultMinDelay      = 5 * time.Second
	DefaultMaxPerMinute  = 6
	DefaultMaxPerHour    = 100
	DefaultMaxPerDay     = 500
	DefaultRobotsTimeout = 30 * time.Second
)

// Limits are the per-domain pacing rules.
// A cap of zero disables that window.
type Limits struct {
	// MinDelay is the minimum spacing between permits for one domain.
	MinDelay time.Duration

	// MaxPerMinute caps permits in any trailing 60 seconds.
	MaxPerMinute int

	// MaxPerHour caps permits in any trailing hour.
	MaxPerHour int

	// MaxPerDay caps permits in any trailing 24 hours.
	MaxPerDay int
}

// DefaultLimits returns conservative limits suitable for a public site.
func DefaultLimits() Limits {
	return Limits{
		MinDelay:     DefaultMinDelay,
		MaxPerMinute: DefaultMaxPerMinute,
		MaxPerHour:   DefaultMaxPerHour,
		MaxPerDay:    DefaultMaxPerDay,
	}
}

// Permit is a grant to issue one request.
type Permit struct {
	// Domain is the domain key the permit was granted for.
	Domain string

	// GrantedAt is when the permit was granted.
	GrantedAt time.Time

	// Waited is how long the caller was blocked for pacing.
	Waited time.Duration
}

// domainState holds the pacing state for one domain.
type domainState struct {
	mu sync.Mutex

	// granted holds permit instants in ascending order.
	granted []time.Time

	// crawlDelay is the largest robots Crawl-delay seen for the domain.
	crawlDelay time.Duration

	// denied counts denials by reason.
	denied map[string]int
}

// Gate enforces robots exclusion and per-domain pacing.
// A Gate is safe for concurrent use and is meant to be shared process-wide.
type Gate struct {
	limits    Limits
	clock     Clock
	fetcher   RobotsFetcher
	robotsTTL time.Duration
	logger    *slog.Logger

	// domainDelays are per-domain minimum delays layered over limits.MinDelay.
	domainDelays map[string]time.Duration

	mu      sync.Mutex
	domains map[string]*domainState

	robots *robotsCache

	robotsChecks   atomic.Int64
	robotsFetches  atomic.Int64
	robotsDegraded atomic.Int64
}

// Option configures a Gate.
type Option func(*Gate)

// WithLimits sets the pacing limits.
func WithLimits(limits Limits) Option {
	return func(g *Gate) {
		g.limits = limits
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithRobotsFetcher sets how robots.txt is retrieved.
func WithRobotsFetcher(fetcher RobotsFetcher) Option {
	return func(g *Gate) {
		if fetcher != nil {
			g.fetcher = fetcher
		}
	}
}

// WithRobotsTTL sets how long a cached robots policy stays valid.
// Zero keeps policies for the lifetime of the gate.
func WithRobotsTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl >= 0 {
			g.robotsTTL = ttl
		}
	}
}

// WithDomainMinDelay sets a minimum delay for one domain (host or URL).
// The effective delay is never shorter than the global MinDelay.
func WithDomainMinDelay(domain string, d time.Duration) Option {
	return func(g *Gate) {
		if d <= 0 {
			return
		}
		if g.domainDelays == nil {
			g.domainDelays = make(map[string]time.Duration)
		}
		g.domainDelays[DomainKey(domain)] = d
	}
}

// WithLogger sets the logger for gate decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate. Without options it uses DefaultLimits, the wall
// clock and an HTTP robots fetcher.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		limits:  DefaultLimits(),
		clock:   SystemClock{},
		domains: make(map[string]*domainState),
		robots:  newRobotsCache(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.fetcher == nil {
		g.fetcher = NewHTTPRobotsFetcher(nil)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Limits returns the configured pacing limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// state returns the pacing state for a domain key, creating it on first use.
func (g *Gate) state(domain string) *domainState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.domains[domain]
	if !ok {
		st = &domainState{denied: make(map[string]int)}
		g.domains[domain] = st
	}
	return st
}

// Admit runs the robots check for rawURL and then waits for a pacing permit
// for its domain. It is the usual entry point before a page fetch.
func (g *Gate) Admit(ctx context.Context, rawURL, userAgent string) (Permit, error) {
	if _, err := g.CheckRobots(ctx, rawURL, userAgent); err != nil {
		return Permit{}, err
	}
	return g.CheckAndWait(ctx, rawURL)
}

// CheckRobots evaluates the robots policy of the URL's origin.
// It returns a *DeniedError wrapping ErrRobotsExcluded when the path is
// disallowed. Failure to fetch robots.txt allows the request.
// The robots check does not consume a pacing permit.
func (g *Gate) CheckRobots(ctx context.Context, rawURL, userAgent string) (Permit, error) {
	origin, path, u, err := parseTarget(rawURL)
	if err != nil {
		return Permit{}, err
	}
	g.robotsChecks.Add(1)

	policy, err := g.policy(ctx, origin, userAgent)
	if err != nil {
		return Permit{}, err
	}

	domain := DomainKey(u.Host)
	st := g.state(domain)

	if delay := policy.CrawlDelay(userAgent); delay > 0 {
		st.mu.Lock()
		if delay > st.crawlDelay {
			st.crawlDelay = delay
		}
		st.mu.Unlock()
	}

	if !policy.Allowed(path, userAgent) {
		st.mu.Lock()
		st.denied[model.ReasonRobotsExcluded]++
		st.mu.Unlock()

		g.logger.Warn("robots.txt disallows path",
			"domain", domain,
			"path", path,
			"user_agent", userAgent,
		)
		return Permit{}, &DeniedError{
			Reason: model.ReasonRobotsExcluded,
			Domain: domain,
			URL:    rawURL,
			err:    ErrRobotsExcluded,
		}
	}

	return Permit{Domain: domain, GrantedAt: g.clock.Now()}, nil
}

// policy returns the cached robots policy for origin, fetching it when
// missing or expired.
func (g *Gate) policy(ctx context.Context, origin, userAgent string) (*RobotsPolicy, error) {
	entry := g.robots.entry(origin)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := g.clock.Now()
	if entry.policy != nil && (g.robotsTTL == 0 || now.Sub(entry.policy.FetchedAt) < g.robotsTTL) {
		return entry.policy, nil
	}

	g.robotsFetches.Add(1)
	status, body, err := g.fetcher.FetchRobots(ctx, origin+"/robots.txt", userAgent)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	policy := &RobotsPolicy{Origin: origin, FetchedAt: now}
	switch {
	case err != nil:
		g.degrade(policy, "fetch failed", "error", err)
	case status >= 500:
		g.degrade(policy, "server error", "status", status)
	default:
		data, parseErr := robotstxt.FromStatusAndBytes(status, body)
		if parseErr != nil {
			g.degrade(policy, "parse failed", "error", parseErr)
		} else {
			policy.data = data
			g.logger.Debug("robots.txt cached", "origin", origin, "status", status)
		}
	}

	entry.policy = policy
	return policy, nil
}

// degrade marks a policy as allow-all and logs why.
func (g *Gate) degrade(policy *RobotsPolicy, why string, args ...any) {
	policy.Degraded = true
	g.robotsDegraded.Add(1)
	g.logger.Warn("robots.txt unavailable, allowing by default",
		append([]any{"origin", policy.Origin, "cause", why}, args...)...)
}

// CheckAndWait grants a pacing permit for a domain (host or URL).
//
// If the previous permit for the domain was granted less than the effective
// delay ago (the largest of MinDelay, the domain's own minimum delay and the
// robots Crawl-delay), the call
// blocks until the delay has passed or ctx is done. It then returns a
// *DeniedError wrapping ErrRateLimited if any window cap is already reached;
// otherwise the permit is recorded and returned.
func (g *Gate) CheckAndWait(ctx context.Context, domain string) (Permit, error) {
	key := DomainKey(domain)
	st := g.state(key)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := g.clock.Now()
	st.prune(now)

	var waited time.Duration
	delay := max(g.limits.MinDelay, g.domainDelays[key], st.crawlDelay)
	if n := len(st.granted); n > 0 && delay > 0 {
		if elapsed := now.Sub(st.granted[n-1]); elapsed < delay {
			wait := delay - elapsed
			g.logger.Debug("pacing request", "domain", key, "wait", wait)
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return Permit{}, err
			}
			now = g.clock.Now()
			waited = wait
			st.prune(now)
		}
	}

	for _, w := range []struct {
		window time.Duration
		limit  int
	}{
		{windowMinute, g.limits.MaxPerMinute},
		{windowHour, g.limits.MaxPerHour},
		{windowDay, g.limits.MaxPerDay},
	} {
		if w.limit <= 0 {
			continue
		}
		inWindow := st.countSince(now.Add(-w.window))
		if inWindow >= w.limit {
			st.denied[model.ReasonRateLimited]++
			oldest := st.granted[len(st.granted)-inWindow]
			retryAfter := oldest.Add(w.window).Sub(now)

			g.logger.Info("rate limit reached",
				"domain", key,
				"window", w.window,
				"limit", w.limit,
				"retry_after", retryAfter,
			)
			return Permit{}, &DeniedError{
				Reason:     model.ReasonRateLimited,
				Domain:     key,
				Window:     w.window,
				RetryAfter: retryAfter,
				err:        ErrRateLimited,
			}
		}
	}

	st.granted = append(st.granted, now)
	return Permit{Domain: key, GrantedAt: now, Waited: waited}, nil
}

// prune drops permits older than the largest window.
func (st *domainState) prune(now time.Time) {
	cutoff := now.Add(-windowDay)
	i := sort.Search(len(st.granted), func(i int) bool {
		return st.granted[i].After(cutoff)
	})
	if i > 0 {
		st.granted = append(st.granted[:0], st.granted[i:]...)
	}
}

// countSince counts permits strictly after since.
func (st *domainState) countSince(since time.Time) int {
	i := sort.Search(len(st.granted), func(i int) bool {
		return st.granted[i].After(since)
	})
	return len(st.granted) - i
}
