// Package crawler walks paginated review listings.
//
// # Architecture
//
// The package is built around PaginationCrawler, a state machine that moves
// through Init, Fetching, Parsing, Redacting and Deciding for each page until
// it reaches Done:
//
//   - Init asks the compliance gate for a permit. A robots exclusion aborts
//     the crawl; a rate limit denial is retried with backoff a bounded number
//     of times and aborts the crawl when no permit can be obtained.
//   - Fetching calls the Fetcher. Transport failures are retried with
//     exponential backoff, each retry behind a fresh permit, and the page is
//     skipped when attempts run out.
//   - Parsing calls the Parser. A parse failure skips the page.
//   - Redacting applies the time cutoff, anonymizes each record, drops
//     duplicates by content hash and enforces the per-page and total caps.
//   - Deciding continues to the next page only if no record crossed the
//     cutoff, a next-page link exists, and neither the page nor the record
//     limit has been reached. Cancellation is checked here.
//
// Pages are fetched strictly one after another within a crawl.
//
// # Components
//
//   - PaginationCrawler: the state machine
//   - HTTPFetcher: HTTP page fetcher with charset decoding and an optional
//     requests-per-second ceiling
//   - HTMLReviewParser, JSONReviewParser, AutoParser: page parsers
//   - NewHTTPClient: HTTP client with optional SOCKS5 egress and header
//     injection
//
// # Usage
//
//	client, _ := crawler.NewHTTPClient(crawler.ClientConfig{Timeout: 30 * time.Second})
//	c := crawler.NewPaginationCrawler(gate, crawler.NewHTTPFetcher(client),
//	    crawler.NewAutoParser(), redact.New())
//	result := c.Crawl(ctx, state, listingURL, time.Now().AddDate(0, -6, 0))
package crawler
