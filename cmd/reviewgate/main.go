// Package main provides the entry point for the reviewgate CLI.
//
// reviewgate collects a bounded, anonymized sample of public venue reviews
// for research. Every request passes a compliance gate that honors
// robots.txt and per-domain rate limits.
//
// Usage:
//
//	reviewgate crawl <venue-name-or-url> --city 北京
//	reviewgate poi <keyword> --city 北京
//	reviewgate history
//	reviewgate purge
//
// See --help for all available options.
package main

// main is the entry point for reviewgate.
func main() {
	Execute()
}
