package poi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/reviewgate/internal/crawler"
	"github.com/nao1215/reviewgate/internal/model"
)

// Default place search endpoints.
const (
	DefaultAmapURL    = "https://restapi.amap.com/v3/place/text"
	DefaultBaiduURL   = "https://api.map.baidu.com/place/v2/search"
	DefaultTencentURL = "https://apis.map.qq.com/ws/place/v1/search"
)

// DefaultLimit is the number of results requested per source.
const DefaultLimit = 20

var (
	// ErrMissingKey is returned when a source has no API key.
	ErrMissingKey = errors.New("missing api key")

	// ErrAPIStatus is returned when the API reports an error status.
	ErrAPIStatus = errors.New("api returned an error status")
)

// Source searches one platform for venues.
type Source interface {
	Platform() model.Platform
	Search(ctx context.Context, keyword, city string, limit int) ([]model.POI, error)
}

// APISource queries a map platform's place search API.
type APISource struct {
	platform  model.Platform
	key       string
	endpoint  string
	gate      crawler.Gate
	fetcher   crawler.Fetcher
	userAgent string
}

// SourceOption configures an APISource.
type SourceOption func(*APISource)

// WithEndpoint overrides the search endpoint.
func WithEndpoint(endpoint string) SourceOption {
	return func(s *APISource) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithSourceUserAgent sets the user agent presented to robots checks.
func WithSourceUserAgent(ua string) SourceOption {
	return func(s *APISource) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// NewAPISource creates a source for platform, which must be a POI source.
func NewAPISource(platform model.Platform, key string, gate crawler.Gate, fetcher crawler.Fetcher, opts ...SourceOption) (*APISource, error) {
	if !platform.IsPOISource() {
		return nil, fmt.Errorf("%w: %q is not a map search platform", model.ErrUnknownPlatform, platform)
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingKey, platform)
	}

	s := &APISource{
		platform:  platform,
		key:       key,
		gate:      gate,
		fetcher:   fetcher,
		userAgent: crawler.DefaultUserAgent,
	}
	switch platform {
	case model.PlatformAmap:
		s.endpoint = DefaultAmapURL
	case model.PlatformBaidu:
		s.endpoint = DefaultBaiduURL
	case model.PlatformTencent:
		s.endpoint = DefaultTencentURL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Platform returns the source platform.
func (s *APISource) Platform() model.Platform {
	return s.platform
}

// SearchURL builds the request URL for a search.
func (s *APISource) SearchURL(keyword, city string, limit int) string {
	q := url.Values{}
	switch s.platform {
	case model.PlatformAmap:
		q.Set("key", s.key)
		q.Set("keywords", keyword)
		q.Set("city", city)
		q.Set("types", "050000")
		q.Set("offset", strconv.Itoa(limit))
		q.Set("page", "1")
		q.Set("extensions", "all")
		q.Set("output", "json")
	case model.PlatformBaidu:
		q.Set("ak", s.key)
		q.Set("query", keyword)
		q.Set("tag", "美食")
		q.Set("region", city)
		q.Set("page_size", strconv.Itoa(limit))
		q.Set("page_num", "0")
		q.Set("scope", "2")
		q.Set("output", "json")
	case model.PlatformTencent:
		q.Set("key", s.key)
		q.Set("keyword", keyword)
		q.Set("boundary", "region("+city+",0)")
		q.Set("page_size", strconv.Itoa(limit))
		q.Set("page_index", "1")
		q.Set("filter", "category=美食")
	}
	return s.endpoint + "?" + q.Encode()
}

// Search queries the API through the gate.
func (s *APISource) Search(ctx context.Context, keyword, city string, limit int) ([]model.POI, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	searchURL := s.SearchURL(keyword, city, limit)

	if _, err := s.gate.Admit(ctx, searchURL, s.userAgent); err != nil {
		return nil, err
	}
	page, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.platform, err)
	}

	pois, err := decode(s.platform, page.Raw)
	if err != nil {
		return nil, err
	}
	if len(pois) > limit {
		pois = pois[:limit]
	}
	return pois, nil
}

type amapResponse struct {
	Status string `json:"status"`
	Info   string `json:"info"`
	POIs   []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Address  any    `json:"address"`
		Location string `json:"location"`
		Type     string `json:"type"`
		BizExt   struct {
			Rating any `json:"rating"`
		} `json:"biz_ext"`
	} `json:"pois"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l latLng) String() string {
	if l.Lat == 0 && l.Lng == 0 {
		return ""
	}
	return strconv.FormatFloat(l.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lat, 'f', -1, 64)
}

type baiduResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Results []struct {
		UID        string `json:"uid"`
		Name       string `json:"name"`
		Address    string `json:"address"`
		Location   latLng `json:"location"`
		DetailInfo struct {
			Tag           string `json:"tag"`
			OverallRating any    `json:"overall_rating"`
		} `json:"detail_info"`
	} `json:"results"`
}

type tencentResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Address  string `json:"address"`
		Location latLng `json:"location"`
		Category string `json:"category"`
	} `json:"data"`
}

// decode converts a platform response into POIs.
func decode(platform model.Platform, raw []byte) ([]model.POI, error) {
	var pois []model.POI
	switch platform {
	case model.PlatformAmap:
		var resp amapResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
		}
		if resp.Status != "1" {
			return nil, fmt.Errorf("%w: %s: %s", ErrAPIStatus, platform, resp.Info)
		}
		for _, p := range resp.POIs {
			pois = append(pois, model.POI{
				Name:     p.Name,
				Address:  looseString(p.Address),
				Location: p.Location,
				Category: p.Type,
				Rating:   looseFloat(p.BizExt.Rating),
				Platform: platform,
				SourceID: p.ID,
			})
		}
	case model.PlatformBaidu:
		var resp baiduResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
		}
		if resp.Status != 0 {
			return nil, fmt.Errorf("%w: %s: %s", ErrAPIStatus, platform, resp.Message)
		}
		for _, p := range resp.Results {
			pois = append(pois, model.POI{
				Name:     p.Name,
				Address:  p.Address,
				Location: p.Location.String(),
				Category: p.DetailInfo.Tag,
				Rating:   looseFloat(p.DetailInfo.OverallRating),
				Platform: platform,
				SourceID: p.UID,
			})
		}
	case model.PlatformTencent:
		var resp tencentResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrParse, err)
		}
		if resp.Status != 0 {
			return nil, fmt.Errorf("%w: %s: %s", ErrAPIStatus, platform, resp.Message)
		}
		for _, p := range resp.Data {
			pois = append(pois, model.POI{
				Name:     p.Title,
				Address:  p.Address,
				Location: p.Location.String(),
				Category: p.Category,
				Platform: platform,
				SourceID: p.ID,
			})
		}
	}
	return pois, nil
}

// looseString reads a field that some APIs send as [] when empty.
func looseString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// looseFloat reads a number sent either as a JSON number or a string.
func looseFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
