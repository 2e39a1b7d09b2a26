package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/reviewgate/internal/compliance"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// TestHTTPFetcher tests page fetching.
func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("fetches page with headers", func(t *testing.T) {
		t.Parallel()

		var gotUA, gotLang string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotLang = r.Header.Get("Accept-Language")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body>你好</body></html>")
		}))
		defer server.Close()

		fetcher := NewHTTPFetcher(server.Client(), WithUserAgent("test-agent/1.0"))
		page, err := fetcher.Fetch(context.Background(), server.URL+"/shop/1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gotUA != "test-agent/1.0" {
			t.Errorf("expected user agent test-agent/1.0, got %q", gotUA)
		}
		if gotLang == "" {
			t.Error("expected Accept-Language to be set")
		}
		if page.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", page.StatusCode)
		}
		if page.ContentType != "text/html" {
			t.Errorf("expected content type text/html, got %q", page.ContentType)
		}
		if !page.IsHTML() {
			t.Error("expected page to be HTML")
		}
		if !strings.Contains(string(page.Raw), "你好") {
			t.Errorf("unexpected body %q", page.Raw)
		}
		if page.Hash == "" {
			t.Error("expected hash to be computed")
		}
		if page.URL != server.URL+"/shop/1" {
			t.Errorf("unexpected url %q", page.URL)
		}
	})

	t.Run("decodes gbk body", func(t *testing.T) {
		t.Parallel()

		encoded, err := simplifiedchinese.GBK.NewEncoder().String("<html><body>北京烤鸭</body></html>")
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=gbk")
			fmt.Fprint(w, encoded)
		}))
		defer server.Close()

		page, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(page.Raw), "北京烤鸭") {
			t.Errorf("expected decoded UTF-8 body, got %q", page.Raw)
		}
	})

	t.Run("leaves json untouched", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"reviews":[]}`)
		}))
		defer server.Close()

		page, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !page.IsJSON() {
			t.Errorf("expected JSON page, got %q", page.ContentType)
		}
		if string(page.Raw) != `{"reviews":[]}` {
			t.Errorf("unexpected body %q", page.Raw)
		}
	})

	t.Run("limits body size", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			fmt.Fprint(w, strings.Repeat("x", 4096))
		}))
		defer server.Close()

		page, err := NewHTTPFetcher(server.Client(), WithMaxBodySize(100)).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Raw) != 100 {
			t.Errorf("expected 100 bytes, got %d", len(page.Raw))
		}
	})

	t.Run("reports status errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			status    int
			retryable bool
		}{
			{status: http.StatusNotFound, retryable: false},
			{status: http.StatusForbidden, retryable: false},
			{status: http.StatusTooManyRequests, retryable: true},
			{status: http.StatusServiceUnavailable, retryable: true},
		}

		for _, tt := range tests {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), server.URL)
			server.Close()

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("status %d: expected StatusError, got %v", tt.status, err)
			}
			if !errors.Is(err, ErrTransport) {
				t.Errorf("status %d: expected ErrTransport", tt.status)
			}
			if statusErr.Retryable() != tt.retryable {
				t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
			}
			if isRetryable(err) != tt.retryable {
				t.Errorf("status %d: isRetryable disagrees", tt.status)
			}
		}
	})

	t.Run("wraps connection failures", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), url)
		if !errors.Is(err, ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
		if !isRetryable(err) {
			t.Error("expected connection failure to be retryable")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		fetcher := NewHTTPFetcher(nil, WithRequestsPerSecond(1))
		_, err := fetcher.Fetch(ctx, "http://127.0.0.1:1/")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestHTTPFetcherRedirects tests that redirect hops go through the gate.
func TestHTTPFetcherRedirects(t *testing.T) {
	t.Parallel()

	t.Run("refuses redirect to robots-excluded path", func(t *testing.T) {
		t.Parallel()

		var privateHit atomic.Bool
		mux := http.NewServeMux()
		mux.HandleFunc("/shop/1", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/private/1", http.StatusFound)
		})
		mux.HandleFunc("/private/1", func(w http.ResponseWriter, _ *http.Request) {
			privateHit.Store(true)
			fmt.Fprint(w, "secret")
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		gate := compliance.NewGate(
			compliance.WithLimits(compliance.Limits{}),
			compliance.WithRobotsFetcher(robotsBody("User-agent: *\nDisallow: /private/\n")),
			compliance.WithLogger(quietLogger()),
		)
		fetcher := NewHTTPFetcher(server.Client(), WithRedirectGate(gate, 0))

		_, err := fetcher.Fetch(context.Background(), server.URL+"/shop/1")
		if !errors.Is(err, compliance.ErrRobotsExcluded) {
			t.Fatalf("expected ErrRobotsExcluded, got %v", err)
		}
		if errors.Is(err, ErrTransport) {
			t.Errorf("gate refusal must not be reported as a transport failure: %v", err)
		}
		if privateHit.Load() {
			t.Error("excluded path was requested")
		}
	})

	t.Run("admits every hop", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/b", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/c", http.StatusFound)
		})
		mux.HandleFunc("/c", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"reviews":[]}`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		gate := &scriptedGate{}
		page, err := NewHTTPFetcher(server.Client(), WithRedirectGate(gate, 0)).Fetch(context.Background(), server.URL+"/a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", page.StatusCode)
		}
		if !strings.HasSuffix(page.URL, "/c") {
			t.Errorf("expected final url, got %q", page.URL)
		}
		if gate.Calls() != 2 {
			t.Errorf("expected 2 gate calls, got %d", gate.Calls())
		}
	})

	t.Run("stops after too many hops", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
		}))
		defer server.Close()

		gate := &scriptedGate{}
		_, err := NewHTTPFetcher(server.Client(), WithRedirectGate(gate, 2)).Fetch(context.Background(), server.URL+"/loop")
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if gate.Calls() != 2 {
			t.Errorf("expected 2 gate calls, got %d", gate.Calls())
		}
	})

	t.Run("returns rate limit refusal unwrapped", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		defer server.Close()

		gate := &scriptedGate{errs: []error{fmt.Errorf("denied: %w", compliance.ErrRateLimited)}}
		_, err := NewHTTPFetcher(server.Client(), WithRedirectGate(gate, 0)).Fetch(context.Background(), server.URL+"/shop")
		if !errors.Is(err, compliance.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if errors.Is(err, ErrTransport) {
			t.Errorf("gate refusal must not be reported as a transport failure: %v", err)
		}
	})

	t.Run("follows redirects without a gate", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "moved")
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		page, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(page.Raw) != "moved" {
			t.Errorf("unexpected body %q", page.Raw)
		}
	})
}

// TestNewHTTPClient tests client construction.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("injects cookie and headers", func(t *testing.T) {
		t.Parallel()

		var gotCookie, gotHeader string
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotCookie = r.Header.Get("Cookie")
			gotHeader = r.Header.Get("X-Research-Contact")
		}))
		defer server.Close()

		client, err := NewHTTPClient(ClientConfig{
			Timeout: DefaultTimeout,
			Cookie:  "session=abc",
			Headers: map[string]string{"X-Research-Contact": "lab@example.edu"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := NewHTTPFetcher(client).Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotCookie != "session=abc" {
			t.Errorf("expected cookie to be injected, got %q", gotCookie)
		}
		if gotHeader != "lab@example.edu" {
			t.Errorf("expected header to be injected, got %q", gotHeader)
		}
	})

	t.Run("accepts socks5 proxy", func(t *testing.T) {
		t.Parallel()

		client, err := NewHTTPClient(ClientConfig{ProxyAddress: "127.0.0.1:1080"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client == nil {
			t.Fatal("expected client")
		}
	})

	t.Run("rejects invalid proxy address", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"localhost", ":9050", "host:0", "host:70000", "host:port"} {
			_, err := NewHTTPClient(ClientConfig{ProxyAddress: addr})
			if !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("%q: expected ErrInvalidProxyAddress, got %v", addr, err)
			}
		}
	})
}
