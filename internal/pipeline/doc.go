// Package pipeline runs crawl sessions.
//
// A session is a sequence of steps over a shared Run: validate the request,
// resolve the target to a review listing URL, and crawl it. Finalizers then
// stamp the bundle metadata and hand the bundle to each configured sink.
// Finalizers run even when the session was aborted or cancelled, so partial
// results are kept along with the reason the session stopped.
//
// CrawlSession.Run never returns an error. BatchProcessor runs many sessions
// with errgroup under a concurrency limit; they share one compliance gate.
package pipeline
