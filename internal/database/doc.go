// Package database stores crawl session bundles.
//
// CrawlDB keeps one row per session with its stamped metadata and one row
// per anonymized review. It is the default persistence sink, and backs the
// history and purge commands. SQLite (modernc.org/sqlite, no cgo) is the
// default; PostgreSQL is available through lib/pq for shared deployments.
//
// Instants are stored as fixed-width UTC text so retention comparisons work
// the same way on both databases.
package database
