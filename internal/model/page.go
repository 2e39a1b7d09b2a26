package model

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"strings"
	"time"
)

// Page is a fetched response handed from a fetcher to a parser.
// The body is already decoded to UTF-8 when the fetcher knows the charset.
type Page struct {
	// URL is the final URL of the page after redirects.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the MIME type of the response without parameters.
	ContentType string `json:"content_type"`

	// Raw is the response body.
	Raw []byte `json:"-"`

	// Hash is the hex SHA-256 of Raw, set by ComputeHash.
	Hash string `json:"hash,omitempty"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// GetHeader returns the first value of the specified header.
// Returns empty string if the header is not present.
func (p *Page) GetHeader(name string) string {
	if values, ok := p.Headers[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// SetContentType stores the media type of a Content-Type header value.
func (p *Page) SetContentType(header string) {
	if header == "" {
		p.ContentType = ""
		return
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	}
	p.ContentType = strings.ToLower(mediaType)
}

// IsHTML returns true if the page content type is HTML.
func (p *Page) IsHTML() bool {
	return p.ContentType == "text/html" || p.ContentType == "application/xhtml+xml"
}

// IsJSON returns true if the page content type is JSON.
func (p *Page) IsJSON() bool {
	return p.ContentType == "application/json" || strings.HasSuffix(p.ContentType, "+json")
}
