// Package resolve turns a target name into crawlable review listing URLs.
//
// HTMLResolver fetches a search results page through the compliance gate and
// returns up to a fixed number of candidates in page order. Static returns a
// fixed candidate and is used when the target is already a URL.
//
// Callers take the first candidate. The number of candidates is reported so
// an ambiguous match can be audited after the fact.
package resolve
