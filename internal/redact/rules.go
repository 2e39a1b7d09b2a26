package redact

import "regexp"

// Category names a kind of sensitive data.
type Category string

// Sensitive data categories.
const (
	CategoryEmail    Category = "email"
	CategoryIDNumber Category = "id_number"
	CategoryBankCard Category = "bank_card"
	CategoryPhone    Category = "phone"

	// CategoryUser is the reviewer's own identifier. It has no default rule;
	// Anonymize builds one per record.
	CategoryUser Category = "user"
)

// Placeholders substituted for matches of the default rules.
const (
	PlaceholderEmail    = "[EMAIL]"
	PlaceholderIDNumber = "[ID_NUMBER]"
	PlaceholderBankCard = "[BANK_CARD]"
	PlaceholderPhone    = "[PHONE]"
	PlaceholderUser     = "[USER]"
)

// Rule maps a pattern to the placeholder that replaces its matches.
type Rule struct {
	// Category is the kind of data the pattern detects.
	Category Category

	// Pattern matches sensitive substrings.
	Pattern *regexp.Regexp

	// Placeholder replaces every match.
	Placeholder string
}

// Patterns for the default rules. Digit patterns are anchored on word
// boundaries so a longer number is never partially consumed by a shorter rule.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// 18-digit resident ID (last character may be X) or legacy 15-digit ID.
	idNumberPattern = regexp.MustCompile(`\b(?:\d{17}[\dXx]|\d{15})\b`)

	// 16 to 19 digits, optionally grouped by four with spaces or dashes.
	bankCardPattern = regexp.MustCompile(`\b\d{4}(?:[ \-]?\d{4}){3}\d{0,3}\b`)

	// Mobile numbers with an optional +86 prefix, dashed 3-4-4 numbers and
	// landlines with an area code.
	phonePattern = regexp.MustCompile(`(?:\+86[ \-]?|\b)1[3-9]\d{9}\b|\b\d{3}-\d{4}-\d{4}\b|\b0\d{2,3}-\d{7,8}\b`)
)

// DefaultRules returns the built-in rule table in application order.
// Email runs first so digits inside an address are not taken for a phone
// number; IDs run before cards and phones because they are the longest runs.
func DefaultRules() []Rule {
	return []Rule{
		{Category: CategoryEmail, Pattern: emailPattern, Placeholder: PlaceholderEmail},
		{Category: CategoryIDNumber, Pattern: idNumberPattern, Placeholder: PlaceholderIDNumber},
		{Category: CategoryBankCard, Pattern: bankCardPattern, Placeholder: PlaceholderBankCard},
		{Category: CategoryPhone, Pattern: phonePattern, Placeholder: PlaceholderPhone},
	}
}
