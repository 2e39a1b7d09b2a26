package redact

import (
	"crypto/md5" //nolint:gosec // content hash is a dedup key, not a security control
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nao1215/reviewgate/internal/model"
	"golang.org/x/text/width"
)

// DefaultMinContentLength is the minimum number of runes a scrubbed review
// must keep to be accepted.
const DefaultMinContentLength = 10

// defaultPersonalTagIndicators mark tags that reveal a reviewer's personal
// context (occasions, relationships).
var defaultPersonalTagIndicators = []string{
	"生日", "约会", "聚会", "庆祝", "纪念", "家庭", "朋友", "同事",
	"birthday", "date night", "party", "anniversary", "family", "friend", "colleague",
}

// Engine scrubs and anonymizes review text.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	// rules are applied to text in order.
	rules []Rule

	// personalTags are substrings that cause a tag to be dropped.
	personalTags []string

	// minContentLength is the minimum rune count of accepted content.
	minContentLength int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the default rule table.
func WithRules(rules []Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithExtraRules appends rules after the default table.
func WithExtraRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

// WithPersonalTagIndicators replaces the personal tag indicators.
func WithPersonalTagIndicators(indicators []string) Option {
	return func(e *Engine) {
		e.personalTags = indicators
	}
}

// WithMinContentLength sets the minimum rune count for accepted content.
// Zero disables the check.
func WithMinContentLength(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.minContentLength = n
		}
	}
}

// New creates an Engine with the default rules.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules:            DefaultRules(),
		personalTags:     defaultPersonalTagIndicators,
		minContentLength: DefaultMinContentLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// foldable lists the punctuation that is folded from full-width along with
// letters and digits. Other full-width punctuation is kept as written.
const foldable = "@.+-_%"

// normalize folds full-width letters, digits and address punctuation to
// their half-width forms so patterns see them as ASCII.
func normalize(text string) string {
	return strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf {
			return r
		}
		p := width.LookupRune(r)
		if p.Kind() != width.EastAsianFullwidth {
			return r
		}
		n := p.Narrow()
		if n == 0 {
			return r
		}
		if unicode.IsDigit(n) || unicode.IsLetter(n) || strings.ContainsRune(foldable, n) {
			return n
		}
		return r
	}, text)
}

// Scrub replaces every sensitive match with its category placeholder.
// Each rule runs as a separate pass over the output of the previous one.
// Patterns match against the half-width form of the text, but only the
// matched spans change; the rest is kept as written.
func (e *Engine) Scrub(text string) string {
	out := text
	for _, rule := range e.rules {
		out = replaceMatches(out, rule)
	}
	return out
}

// replaceMatches replaces the spans of text whose normalized form matches
// rule.Pattern with rule.Placeholder.
func replaceMatches(text string, rule Rule) string {
	normalized := normalize(text)
	matches := rule.Pattern.FindAllStringIndex(normalized, -1)
	if len(matches) == 0 {
		return text
	}
	offsets := originalOffsets(text, normalized)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := offsets[m[0]], offsets[m[1]]
		b.WriteString(text[last:start])
		b.WriteString(rule.Placeholder)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// originalOffsets maps each rune boundary of normalized to the byte offset of
// the same rune in text. normalize maps runes one to one, so the i-th rune of
// both strings is the same character.
func originalOffsets(text, normalized string) []int {
	offsets := make([]int, len(normalized)+1)
	ti, ni := 0, 0
	for ni < len(normalized) {
		offsets[ni] = ti
		_, nw := utf8.DecodeRuneInString(normalized[ni:])
		_, tw := utf8.DecodeRuneInString(text[ti:])
		ni += nw
		ti += tw
	}
	offsets[ni] = ti
	return offsets
}

// IsSensitive reports whether any rule matches the text.
func (e *Engine) IsSensitive(text string) bool {
	normalized := normalize(text)
	for _, rule := range e.rules {
		if rule.Pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Detect returns the categories that match the text, in rule order.
func (e *Engine) Detect(text string) []Category {
	normalized := normalize(text)
	var found []Category
	for _, rule := range e.rules {
		if rule.Pattern.MatchString(normalized) {
			found = append(found, rule.Category)
		}
	}
	return found
}

// FilterTags drops empty tags, duplicates and tags that carry personal
// context. Remaining tags are scrubbed.
func (e *Engine) FilterTags(tags []string) []string {
	return e.filterTags(tags, nil)
}

// filterTags is FilterTags with an optional extra rule applied after
// scrubbing.
func (e *Engine) filterTags(tags []string, extra *Rule) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	filtered := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || e.isPersonalTag(tag) {
			continue
		}
		tag = e.Scrub(tag)
		if extra != nil {
			tag = replaceMatches(tag, *extra)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		filtered = append(filtered, tag)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func (e *Engine) isPersonalTag(tag string) bool {
	lower := strings.ToLower(tag)
	for _, indicator := range e.personalTags {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// BucketTime generalizes a free-text time expression relative to ref.
// Unparseable text maps to TimeBucketUnknown.
func (e *Engine) BucketTime(raw string, ref time.Time) model.TimeBucket {
	return BucketTime(raw, ref)
}

// Outcome is the result of anonymizing one raw review.
type Outcome struct {
	// Record is the anonymized review.
	Record model.AnonymizedReview

	// Scrubbed is true when the content contained sensitive data that was
	// replaced.
	Scrubbed bool
}

// Anonymize converts a raw review into an anonymized record.
//
// Content that matches a sensitive pattern is scrubbed; if it still matches
// afterwards the record is rejected with ErrSensitiveContentRejected.
// Occurrences of the reviewer identifier in content and tags are replaced
// with PlaceholderUser, so the identifier only survives as UserHash.
// Content shorter than the minimum length after scrubbing is rejected with
// ErrContentTooShort.
func (e *Engine) Anonymize(raw model.RawReview, ref time.Time) (Outcome, error) {
	content := strings.TrimSpace(raw.Content)

	var out Outcome
	if e.IsSensitive(content) {
		content = e.Scrub(content)
		out.Scrubbed = true
		if e.IsSensitive(content) {
			return out, ErrSensitiveContentRejected
		}
	}

	var (
		userHash string
		userRule *Rule
	)
	if id := strings.TrimSpace(raw.RawUserID); id != "" {
		userHash = HashIdentifier(id)
		userRule = identifierRule(id)
		content = replaceMatches(content, *userRule)
	}

	if utf8.RuneCountInString(content) < e.minContentLength {
		return out, ErrContentTooShort
	}

	out.Record = model.AnonymizedReview{
		Content:          content,
		Rating:           normalizeRating(raw.Rating),
		TimeBucket:       BucketTime(raw.RawTime, ref),
		UserHash:         userHash,
		Tags:             e.filterTags(raw.Tags, userRule),
		ContentHash:      ContentHash(content),
		ProcessedAt:      ref,
		PrivacyProtected: true,
	}
	return out, nil
}

// identifierRule matches a reviewer identifier case-insensitively and in
// either full-width or half-width form.
func identifierRule(id string) *Rule {
	return &Rule{
		Category:    CategoryUser,
		Pattern:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(normalize(id))),
		Placeholder: PlaceholderUser,
	}
}

// normalizeRating clamps a rating to 0..5; absent ratings become 0.
func normalizeRating(r *float64) float64 {
	if r == nil {
		return 0
	}
	switch {
	case *r < 0:
		return 0
	case *r > 5:
		return 5
	default:
		return *r
	}
}

// ContentHash returns the hex MD5 digest of content, used as the review
// dedup key.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
