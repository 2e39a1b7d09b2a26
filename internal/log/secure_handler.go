package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/reviewgate/internal/redact"
)

// secretKeys contains attribute keys whose values are always masked.
var secretKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"proxy-authorization": true,

	// Credentials
	"password":     true,
	"secret":       true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"api-key":      true,
	"access_token": true,
	"credential":   true,
	"credentials":  true,

	// Map platform keys (amap/tencent "key", baidu "ak")
	"key": true,
	"ak":  true,
	"sk":  true,
	"sig": true,
}

// userKeys contains attribute keys that carry reviewer identifiers.
// Their values are replaced with the same one-way token used in bundles.
var userKeys = map[string]bool{
	"user":        true,
	"user_id":     true,
	"userid":      true,
	"nickname":    true,
	"raw_user":    true,
	"raw_user_id": true,
	"reviewer":    true,
}

// secretQueryParams are URL query parameters masked inside string values.
var secretQueryParams = []string{"key", "ak", "sk", "sig", "token", "access_token", "api_key"}

// sensitivePatterns contains regex patterns that indicate secret values.
// Values matching these patterns are masked regardless of key name.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// API keys (long alphanumeric strings)
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// Private key markers
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// QueryMaskValue replaces secret URL query parameters. It needs no escaping.
const QueryMaskValue = "REDACTED"

// SecureHandler wraps an slog.Handler to sanitize sensitive information.
//
// It masks secret-bearing keys and values, replaces reviewer identifiers
// with their one-way token, strips API keys from URLs, and scrubs personal
// data (phone numbers, emails, ID and card numbers) out of string values
// with the redaction engine before passing records on.
type SecureHandler struct {
	// handler is the underlying slog handler that receives sanitized records.
	handler slog.Handler

	// engine scrubs personal data from free text.
	engine *redact.Engine
}

// HandlerOption configures a SecureHandler.
type HandlerOption func(*SecureHandler)

// WithRedactor sets the engine used to scrub personal data from values.
func WithRedactor(engine *redact.Engine) HandlerOption {
	return func(h *SecureHandler) {
		if engine != nil {
			h.engine = engine
		}
	}
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, the returned SecureHandler will use slog.Default().Handler().
func NewSecureHandler(handler slog.Handler, opts ...HandlerOption) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &SecureHandler{handler: handler}
	for _, opt := range opts {
		opt(h)
	}
	if h.engine == nil {
		h.engine = redact.New()
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's message and attributes and passes it to the
// underlying handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, h.sanitizeString(r.Message), r.PC)

	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})

	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added.
// Attributes are sanitized before being added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs), engine: h.engine}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), engine: h.engine}
}

// sanitizeAttr sanitizes a single attribute, recursively handling groups.
func (h *SecureHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if secretKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}
	if userKeys[keyLower] {
		raw := a.Value.String()
		if raw == "" {
			return a
		}
		return slog.String(a.Key, redact.HashIdentifier(raw))
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizeString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, h.sanitizeString(err.Error()))
		}
	}
	return a
}

// sanitizeString masks secrets and scrubs personal data from a value.
func (h *SecureHandler) sanitizeString(s string) string {
	if isSensitiveValue(s) {
		return MaskValue
	}
	s = maskURLSecrets(s)
	if h.engine.IsSensitive(s) {
		return h.engine.Scrub(s)
	}
	return s
}

// urlPattern finds absolute http(s) URLs inside free text such as error
// messages.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// maskURLSecrets replaces API key query parameters in any URL inside s.
func maskURLSecrets(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "?") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.RawQuery == "" {
			return raw
		}
		q := u.Query()
		changed := false
		for _, p := range secretQueryParams {
			if q.Has(p) {
				q.Set(p, QueryMaskValue)
				changed = true
			}
		}
		if !changed {
			return raw
		}
		u.RawQuery = q.Encode()
		return u.String()
	})
}

// containsSensitiveKeyword checks if the key contains sensitive keywords.
// The bare "key" keyword is matched exactly through secretKeys instead, as a
// substring match would hit keys such as "keyword".
func containsSensitiveKeyword(key string) bool {
	sensitiveKeywords := []string{
		"password", "passwd", "secret", "token", "credential", "private", "cookie",
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// isSensitiveValue checks if a value matches sensitive patterns.
func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// NewSecureLogger creates a new slog.Logger with secure handling.
// The logger sanitizes sensitive information in all log output.
//
// If verbose is true the level is Debug, otherwise Warn.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a new slog.Logger with secure handling
// that outputs JSON format. Useful for structured log aggregation.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
