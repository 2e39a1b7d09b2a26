// Package dedup provides first-seen-wins duplicate suppression.
//
// An Index is a concurrency-safe set of string keys. Two kinds of index are
// used by reviewgate:
//   - a per-session review index keyed by the anonymized content hash, which
//     collapses repeated reviews such as pagination overlap
//   - a per-aggregation POI index keyed by POIKey(name, address), which merges
//     venue records returned by several map sources
//
// Indexes are scoped to one session or aggregation and are never persisted.
package dedup
