package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/reviewgate/internal/model"
)

// ParseResult is what a parser extracts from one review page.
type ParseResult struct {
	// Reviews are the raw reviews in page order.
	Reviews []model.RawReview

	// NextURL is the absolute URL of the next page, empty on the last page.
	NextURL string
}

// Parser extracts reviews and the next-page link from a fetched page.
// Implementations return an error wrapping ErrParse when the page is not in
// the expected format.
type Parser interface {
	Parse(page *model.Page) (*ParseResult, error)
}

// Selectors are the CSS selectors used by HTMLReviewParser.
type Selectors struct {
	// Item selects one review block.
	Item string

	// Content selects the review text inside an item.
	Content string

	// Rating selects the element whose class encodes the star rating.
	Rating string

	// Time selects the review time text.
	Time string

	// User selects the reviewer name.
	User string

	// Tags selects individual tag elements.
	Tags string

	// Next selects the next-page link.
	Next string
}

// DefaultSelectors returns selectors for the review listing layout of the
// default review platform.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:    "div.reviews-items div.main-review",
		Content: "div.review-words",
		Rating:  "span.item-rank-rst, span.sml-rank-stars",
		Time:    "span.time",
		User:    "div.dper-info a",
		Tags:    "div.review-tags span.tag",
		Next:    "a.NextPage, a.next, link[rel=next]",
	}
}

// ratingClassPrefixes are class name prefixes followed by the rating * 10.
var ratingClassPrefixes = []string{"irr-star", "sml-str", "star_", "star"}

// HTMLReviewParser parses HTML review listing pages with goquery.
type HTMLReviewParser struct {
	selectors Selectors
}

// NewHTMLReviewParser creates a parser. A zero Selectors uses DefaultSelectors.
func NewHTMLReviewParser(selectors Selectors) *HTMLReviewParser {
	if selectors == (Selectors{}) {
		selectors = DefaultSelectors()
	}
	return &HTMLReviewParser{selectors: selectors}
}

// Parse extracts reviews from an HTML page.
// Items without review text are skipped.
func (p *HTMLReviewParser) Parse(page *model.Page) (*ParseResult, error) {
	if page == nil || len(bytes.TrimSpace(page.Raw)) == 0 {
		return nil, fmt.Errorf("%w: empty page", ErrParse)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	result := &ParseResult{Reviews: make([]model.RawReview, 0)}
	doc.Find(p.selectors.Item).Each(func(_ int, item *goquery.Selection) {
		content := cleanText(item.Find(p.selectors.Content).First().Text())
		if content == "" {
			return
		}

		review := model.RawReview{
			Content:   content,
			Rating:    ratingFromClasses(item.Find(p.selectors.Rating).First()),
			RawTime:   cleanText(item.Find(p.selectors.Time).First().Text()),
			RawUserID: cleanText(item.Find(p.selectors.User).First().Text()),
		}
		item.Find(p.selectors.Tags).Each(func(_ int, tag *goquery.Selection) {
			if text := cleanText(tag.Text()); text != "" {
				review.Tags = append(review.Tags, text)
			}
		})

		result.Reviews = append(result.Reviews, review)
	})

	result.NextURL = p.nextURL(doc, page.URL)
	return result, nil
}

// nextURL returns the first enabled next-page link, resolved against base.
func (p *HTMLReviewParser) nextURL(doc *goquery.Document, base string) string {
	var next string
	doc.Find(p.selectors.Next).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("disabled") {
			return true
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		if resolved := resolveURL(base, href); resolved != "" && resolved != base {
			next = resolved
			return false
		}
		return true
	})
	return next
}

// ratingFromClasses reads a rating such as "irr-star45" as 4.5.
// Returns nil when no rating class is present.
func ratingFromClasses(s *goquery.Selection) *float64 {
	if s.Length() == 0 {
		return nil
	}
	class, _ := s.Attr("class")
	for _, cls := range strings.Fields(class) {
		for _, prefix := range ratingClassPrefixes {
			rest, ok := strings.CutPrefix(cls, prefix)
			if !ok || rest == "" {
				continue
			}
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			rating := float64(n) / 10
			return &rating
		}
	}
	return nil
}

// jsonReviewPage is the payload of a JSON review API page.
type jsonReviewPage struct {
	Reviews []jsonReview `json:"reviews"`
	Next    string       `json:"next"`
}

type jsonReview struct {
	Content string   `json:"content"`
	Rating  *float64 `json:"rating"`
	Time    string   `json:"time"`
	User    string   `json:"user"`
	Tags    []string `json:"tags"`
}

// JSONReviewParser parses JSON review API pages of the form
// {"reviews":[{"content","rating","time","user","tags"}],"next":"..."}.
type JSONReviewParser struct{}

// Parse extracts reviews from a JSON page.
func (JSONReviewParser) Parse(page *model.Page) (*ParseResult, error) {
	if page == nil || len(bytes.TrimSpace(page.Raw)) == 0 {
		return nil, fmt.Errorf("%w: empty page", ErrParse)
	}

	var payload jsonReviewPage
	if err := json.Unmarshal(page.Raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	result := &ParseResult{Reviews: make([]model.RawReview, 0, len(payload.Reviews))}
	for _, r := range payload.Reviews {
		content := cleanText(r.Content)
		if content == "" {
			continue
		}
		result.Reviews = append(result.Reviews, model.RawReview{
			Content:   content,
			Rating:    r.Rating,
			RawTime:   strings.TrimSpace(r.Time),
			RawUserID: strings.TrimSpace(r.User),
			Tags:      r.Tags,
		})
	}
	if payload.Next != "" {
		result.NextURL = resolveURL(page.URL, payload.Next)
	}
	return result, nil
}

// AutoParser picks the HTML or JSON parser by the page's content type.
type AutoParser struct {
	HTML Parser
	JSON Parser
}

// NewAutoParser creates an AutoParser with the default HTML selectors.
func NewAutoParser() *AutoParser {
	return &AutoParser{
		HTML: NewHTMLReviewParser(DefaultSelectors()),
		JSON: JSONReviewParser{},
	}
}

// Parse dispatches on page.ContentType. Pages without a recognized type are
// parsed as HTML.
func (p *AutoParser) Parse(page *model.Page) (*ParseResult, error) {
	if page != nil && page.IsJSON() {
		return p.JSON.Parse(page)
	}
	return p.HTML.Parse(page)
}

// cleanText trims text and collapses internal whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL resolves href against base. It returns "" for links that can
// not be followed.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		if u.IsAbs() {
			return u.String()
		}
		return ""
	}
	return b.ResolveReference(u).String()
}
