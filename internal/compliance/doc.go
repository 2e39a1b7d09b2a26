// Package compliance gates every outbound request of a crawl.
//
// A Gate combines two policies:
//
//   - robots exclusion: robots.txt is fetched once per origin, parsed with
//     github.com/temoto/robotstxt and cached. Disallowed paths are denied
//     with ErrRobotsExcluded, which is terminal for a crawl target. When
//     robots.txt cannot be fetched (transport error or 5xx) the gate allows
//     the request and logs the degraded decision.
//
//   - request pacing: for each domain the gate keeps the instants of granted
//     permits. Callers are blocked until min_delay (or the robots
//     Crawl-delay, whichever is larger) has passed since the previous
//     permit, and are denied with ErrRateLimited when the per-minute,
//     per-hour or per-day cap is already reached. Rate limiting is
//     retryable.
//
// Domains are keyed by their registrable domain (eTLD+1), so www.example.com
// and m.example.com share one budget.
//
// # Concurrency
//
// One Gate is shared by all sessions of a process. Each domain has its own
// lock; a caller waiting out the delay for one domain holds only that
// domain's lock, so sessions targeting other domains are never blocked.
//
// # Usage
//
//	gate := compliance.NewGate(compliance.WithLimits(compliance.DefaultLimits()))
//	permit, err := gate.Admit(ctx, "https://www.example.com/shop/1/review", ua)
//	if errors.Is(err, compliance.ErrRobotsExcluded) {
//	    // give up on the target
//	}
package compliance
