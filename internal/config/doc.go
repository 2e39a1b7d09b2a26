// Package config provides the configuration for reviewgate: crawl pacing and
// volume limits, request purpose and platform, storage and export settings,
// map platform API keys, and per-site overrides read from the .reviewgate
// file.
package config
