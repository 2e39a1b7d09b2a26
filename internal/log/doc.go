// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks:
//   - HTTP headers and credentials (Authorization, Cookie, token, api_key)
//   - map platform API keys, both as attributes and as URL query parameters
//   - reviewer identifiers (user, user_id, nickname), replaced by their
//     one-way token
//   - phone numbers, emails, ID and bank card numbers inside any string value
//
// Even in verbose mode, sensitive values are masked so that logs can be
// shared without exposing reviewers or credentials.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("page fetched",
//	    "url", "https://restapi.amap.com/v3/place/text?key=abc", // key=REDACTED
//	    "user_id", "u12345",                                     // 8 hex token
//	)
//
//	slog.SetDefault(logger)
package log
