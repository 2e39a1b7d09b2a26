// Package model defines the core data structures used throughout reviewgate.
//
// This package contains the following main types:
//   - Page: A fetched response body handed from a fetcher to a parser
//   - RawReview: A review as produced by page parsing, before anonymization
//   - AnonymizedReview: The immutable unit that is persisted downstream
//   - SessionState: Progress counters and status of one crawl session
//   - Bundle: The metadata-stamped record set handed to a persistence sink
//   - POI: A venue record collected from a map-search source
//
// Enumerations that used to be free-form strings (purpose, platform, time
// bucket, session status) are closed types with Parse functions that reject
// unknown values.
//
// The models are serializable to JSON and YAML for export and database
// storage.
package model
