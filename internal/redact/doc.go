// Package redact anonymizes review records before they leave the crawler.
//
// The Engine is driven by an ordered table of rules, one per sensitive
// category (email, national ID, bank card, phone). Scrub applies every rule
// in turn, one pass per category, and replaces each match with the rule's
// placeholder. New categories are added by extending the table.
//
// Besides scrubbing, the package provides:
//   - HashIdentifier: a fixed-width one-way token for reviewer identifiers
//   - ParseTime and BucketTime: best-effort parsing of relative and absolute
//     time expressions into coarse buckets
//   - FilterTags: removal of tags that reveal personal context
//   - Anonymize: the full RawReview to AnonymizedReview conversion
//
// Full-width letters, digits and address punctuation are folded to
// half-width before matching so they are detected like their ASCII forms.
// Other full-width punctuation is left as written.
//
// # Usage
//
//	engine := redact.New()
//	clean := engine.Scrub("call 13812345678")  // "call [PHONE]"
//	token := redact.HashIdentifier("reviewer") // 8 hex characters
package redact
