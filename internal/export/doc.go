// Package export writes session bundles to files.
//
// FileSink writes one bundle file per session (JSON or YAML) and a CSV copy
// of the records for spreadsheet use. File names start with the session ID.
package export
