package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/reviewgate/internal/compliance"
	"github.com/nao1215/reviewgate/internal/model"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// Fetcher defaults.
const (
	// DefaultUserAgent identifies the crawler to site operators.
	DefaultUserAgent = "reviewgate/1.0 (+research; respects robots.txt)"

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize int64 = 5 * 1024 * 1024

	// DefaultTimeout is the per-request timeout of the default client.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRedirects is the number of redirect hops followed per fetch.
	DefaultMaxRedirects = 5
)

// Fetcher retrieves one page.
// Implementations return an error wrapping ErrTransport when the page could
// not be retrieved.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*model.Page, error)
}

// HTTPFetcher fetches pages over HTTP and decodes their body to UTF-8.
//
// It is safe for concurrent use. The optional requests-per-second limiter is
// process-wide and sits below the per-domain pacing of the compliance gate.
type HTTPFetcher struct {
	// client is the HTTP client used for requests.
	client *http.Client

	// userAgent is the User-Agent header to use.
	userAgent string

	// acceptLanguage is the Accept-Language header to use.
	acceptLanguage string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// limiter caps requests per second across all domains, nil for no cap.
	limiter *rate.Limiter

	// redirectGate admits every redirect hop, nil to follow the client's
	// own redirect policy.
	redirectGate Gate

	// maxRedirects is the number of hops followed when redirectGate is set.
	maxRedirects int

	// now returns the current time, replaceable for tests.
	now func() time.Time
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithAcceptLanguage sets the Accept-Language header.
func WithAcceptLanguage(lang string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.acceptLanguage = lang
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithRequestsPerSecond caps the request rate of the fetcher.
// Zero or negative removes the cap.
func WithRequestsPerSecond(rps float64) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRedirectGate makes every redirect hop ask gate for a permit, so a
// redirect to another host or to a robots-excluded path is paced and checked
// like any other request. maxHops of zero or less uses DefaultMaxRedirects.
func WithRedirectGate(gate Gate, maxHops int) FetcherOption {
	return func(f *HTTPFetcher) {
		f.redirectGate = gate
		if maxHops > 0 {
			f.maxRedirects = maxHops
		}
	}
}

// NewHTTPFetcher creates a fetcher using client. A nil client is replaced by
// one with DefaultTimeout.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	f := &HTTPFetcher{
		client:         client,
		userAgent:      DefaultUserAgent,
		acceptLanguage: "zh-CN,zh;q=0.9,en;q=0.8",
		maxBodySize:    DefaultMaxBodySize,
		maxRedirects:   DefaultMaxRedirects,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.redirectGate != nil {
		gated := *client
		gated.CheckRedirect = f.checkRedirect
		f.client = &gated
	}
	return f
}

// checkRedirect admits one redirect hop through the redirect gate.
func (f *HTTPFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrTransport, f.maxRedirects)
	}
	if _, err := f.redirectGate.Admit(req.Context(), req.URL.String(), f.userAgent); err != nil {
		return fmt.Errorf("redirect to %s refused: %w", req.URL.Redacted(), err)
	}
	return nil
}

// UserAgent returns the User-Agent the fetcher sends.
func (f *HTTPFetcher) UserAgent() string {
	return f.userAgent
}

// Fetch performs a GET for pageURL.
//
// Responses with status 400 and above are returned as *StatusError. A
// redirect refused by the redirect gate returns the gate's error, which does
// not wrap ErrTransport. Text
// bodies are decoded from the charset declared in Content-Type or sniffed
// from the document (GBK and GB18030 are common on Chinese sites).
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isDenial(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBodySize)) //nolint:errcheck // draining for connection reuse
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	var body io.Reader = io.LimitReader(resp.Body, f.maxBodySize)
	if isText(contentType) {
		decoded, err := charset.NewReader(body, contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode body: %w", ErrTransport, err)
		}
		body = decoded
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: failed to read body: %w", ErrTransport, err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	page := &model.Page{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Raw:        raw,
		FetchedAt:  f.now(),
	}
	page.SetContentType(contentType)
	page.ComputeHash()

	return page, nil
}

// isDenial reports whether err is a compliance gate refusal.
func isDenial(err error) bool {
	return errors.Is(err, compliance.ErrRobotsExcluded) ||
		errors.Is(err, compliance.ErrRateLimited) ||
		errors.Is(err, compliance.ErrInvalidURL)
}

// isText reports whether a Content-Type carries text that may need charset
// decoding. JSON is UTF-8 by definition and is left alone.
func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.HasPrefix(ct, "text/") || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
