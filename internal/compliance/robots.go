package compliance

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/publicsuffix"
)

// maxRobotsSize caps the robots.txt body read into memory.
const maxRobotsSize = 512 * 1024

// RobotsFetcher retrieves robots.txt for an origin.
// A non-nil error means the file could not be fetched at all.
type RobotsFetcher interface {
	FetchRobots(ctx context.Context, robotsURL, userAgent string) (status int, body []byte, err error)
}

// HTTPRobotsFetcher fetches robots.txt over HTTP.
type HTTPRobotsFetcher struct {
	client *http.Client
}

// NewHTTPRobotsFetcher creates a fetcher using client, or a client with a
// 30 second timeout when client is nil.
func NewHTTPRobotsFetcher(client *http.Client) *HTTPRobotsFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultRobotsTimeout}
	}
	return &HTTPRobotsFetcher{client: client}
}

// FetchRobots performs a GET for robotsURL.
func (f *HTTPRobotsFetcher) FetchRobots(ctx context.Context, robotsURL, userAgent string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create robots request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}
	return resp.StatusCode, body, nil
}

// RobotsPolicy is the cached robots decision source for one origin.
type RobotsPolicy struct {
	// Origin is scheme://host[:port].
	Origin string

	// FetchedAt is when robots.txt was retrieved.
	FetchedAt time.Time

	// Degraded is true when robots.txt could not be retrieved or parsed and
	// the policy allows everything by default.
	Degraded bool

	// data is nil for degraded policies.
	data *robotstxt.RobotsData
}

// Allowed reports whether userAgent may fetch path.
func (p *RobotsPolicy) Allowed(path, userAgent string) bool {
	if p.data == nil {
		return true
	}
	return p.data.TestAgent(path, userAgent)
}

// CrawlDelay returns the Crawl-delay declared for userAgent, or zero.
func (p *RobotsPolicy) CrawlDelay(userAgent string) time.Duration {
	if p.data == nil {
		return 0
	}
	group := p.data.FindGroup(userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// robotsEntry serializes fetches for one origin so concurrent sessions do
// not download the same robots.txt twice.
type robotsEntry struct {
	mu     sync.Mutex
	policy *RobotsPolicy
}

// robotsCache holds policies by origin.
type robotsCache struct {
	mu      sync.Mutex
	entries map[string]*robotsEntry
}

func newRobotsCache() *robotsCache {
	return &robotsCache{entries: make(map[string]*robotsEntry)}
}

func (c *robotsCache) entry(origin string) *robotsEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[origin]
	if !ok {
		e = &robotsEntry{}
		c.entries[origin] = e
	}
	return e
}

// origins returns the number of cached origins.
func (c *robotsCache) origins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// parseTarget splits a URL into its origin and the path robots rules apply
// to (path plus query).
func parseTarget(rawURL string) (origin, path string, u *url.URL, err error) {
	u, err = url.Parse(rawURL)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host, path, u, nil
}

// DomainKey returns the key the gate tracks request pacing under.
// It accepts a host, host:port or absolute URL and returns the registrable
// domain (eTLD+1). IP addresses and single-label hosts are returned as is.
func DomainKey(hostOrURL string) string {
	host := strings.TrimSpace(hostOrURL)
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(strings.Trim(host, "[]"), "."))
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
