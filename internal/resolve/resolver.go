package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/reviewgate/internal/crawler"
	"github.com/nao1215/reviewgate/internal/model"
)

// Resolver defaults.
const (
	// DefaultLimit is the maximum number of candidates returned.
	DefaultLimit = 5

	// DefaultSearchURL is the search URL template. {city} and {keyword} are
	// replaced with the path-escaped values.
	DefaultSearchURL = "https://www.dianping.com/search/keyword/{city}/0_{keyword}"

	// DefaultReviewPath is appended to a venue URL to reach its review listing.
	DefaultReviewPath = "/review_all"
)

// ErrEmptyQuery is returned when the name to resolve is blank.
var ErrEmptyQuery = errors.New("empty search query")

// Resolver searches for venues by name.
// An empty result with a nil error means nothing matched.
type Resolver interface {
	Resolve(ctx context.Context, name, city string) ([]model.CandidateEntity, error)
}

// Static always resolves to one fixed candidate.
type Static struct {
	Candidate model.CandidateEntity
}

// NewStatic creates a resolver that returns rawURL as the only candidate.
func NewStatic(rawURL string) *Static {
	return &Static{Candidate: model.CandidateEntity{Name: rawURL, URL: rawURL}}
}

// Resolve returns the fixed candidate.
func (s *Static) Resolve(_ context.Context, _, _ string) ([]model.CandidateEntity, error) {
	if s.Candidate.URL == "" {
		return nil, nil
	}
	return []model.CandidateEntity{s.Candidate}, nil
}

// SearchSelectors are the CSS selectors used to read search results.
type SearchSelectors struct {
	// Item selects one result block.
	Item string

	// Name selects the venue name; its first link is the venue URL.
	Name string

	// Address selects the venue address.
	Address string
}

// DefaultSearchSelectors returns selectors for the default search page layout.
func DefaultSearchSelectors() SearchSelectors {
	return SearchSelectors{
		Item:    "div.shop-list div.shop-wrap, div.shop-list li",
		Name:    "h4, div.tit",
		Address: "span.addr",
	}
}

// HTMLResolver resolves names by fetching and parsing a search results page.
type HTMLResolver struct {
	gate       crawler.Gate
	fetcher    crawler.Fetcher
	searchURL  string
	reviewPath string
	limit      int
	selectors  SearchSelectors
	userAgent  string
	logger     *slog.Logger
}

// Option configures an HTMLResolver.
type Option func(*HTMLResolver)

// WithSearchURL sets the search URL template.
func WithSearchURL(template string) Option {
	return func(r *HTMLResolver) {
		if template != "" {
			r.searchURL = template
		}
	}
}

// WithReviewPath sets the path appended to venue URLs. Empty uses the venue
// URL as is.
func WithReviewPath(path string) Option {
	return func(r *HTMLResolver) {
		r.reviewPath = path
	}
}

// WithLimit sets the maximum number of candidates.
func WithLimit(n int) Option {
	return func(r *HTMLResolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithSelectors sets the search page selectors.
func WithSelectors(s SearchSelectors) Option {
	return func(r *HTMLResolver) {
		r.selectors = s
	}
}

// WithUserAgent sets the user agent presented to robots checks.
func WithUserAgent(ua string) Option {
	return func(r *HTMLResolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HTMLResolver) {
		r.logger = logger
	}
}

// NewHTMLResolver creates a resolver that fetches search pages through gate.
func NewHTMLResolver(gate crawler.Gate, fetcher crawler.Fetcher, opts ...Option) *HTMLResolver {
	r := &HTMLResolver{
		gate:       gate,
		fetcher:    fetcher,
		searchURL:  DefaultSearchURL,
		reviewPath: DefaultReviewPath,
		limit:      DefaultLimit,
		selectors:  DefaultSearchSelectors(),
		userAgent:  crawler.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// SearchURL returns the search URL for name and city.
func (r *HTMLResolver) SearchURL(name, city string) string {
	replacer := strings.NewReplacer(
		"{city}", url.PathEscape(strings.TrimSpace(city)),
		"{keyword}", url.PathEscape(strings.TrimSpace(name)),
	)
	return replacer.Replace(r.searchURL)
}

// Resolve searches for name in city.
// Gate denials are returned unchanged so callers can tell a robots
// exclusion from other failures.
func (r *HTMLResolver) Resolve(ctx context.Context, name, city string) ([]model.CandidateEntity, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyQuery
	}

	searchURL := r.SearchURL(name, city)
	if _, err := r.gate.Admit(ctx, searchURL, r.userAgent); err != nil {
		return nil, err
	}

	page, err := r.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search page: %w", err)
	}

	candidates, err := r.parse(page)
	if err != nil {
		return nil, err
	}

	r.logger.Info("search resolved",
		"query", name,
		"city", city,
		"candidates", len(candidates),
	)
	return candidates, nil
}

// parse reads candidates from a search results page.
func (r *HTMLResolver) parse(page *model.Page) ([]model.CandidateEntity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page url: %w", crawler.ErrParse, err)
	}

	candidates := make([]model.CandidateEntity, 0, r.limit)
	seen := make(map[string]bool)
	doc.Find(r.selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		nameElem := item.Find(r.selectors.Name).First()
		link := nameElem.Find("a").First()
		if link.Length() == 0 && nameElem.Is("a") {
			link = nameElem
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		venue := base.ResolveReference(ref)
		venue.Fragment = ""

		name := strings.Join(strings.Fields(nameElem.Text()), " ")
		if name == "" || seen[venue.String()] {
			return true
		}
		seen[venue.String()] = true

		candidates = append(candidates, model.CandidateEntity{
			ID:      lastSegment(venue.Path),
			Name:    name,
			Address: strings.TrimSpace(item.Find(r.selectors.Address).First().Text()),
			URL:     r.reviewURL(venue),
		})
		return len(candidates) < r.limit
	})

	return candidates, nil
}

// reviewURL appends the review path to a venue URL.
func (r *HTMLResolver) reviewURL(venue *url.URL) string {
	if r.reviewPath == "" {
		return venue.String()
	}
	u := *venue
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + r.reviewPath
	u.RawPath = ""
	return u.String()
}

func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
