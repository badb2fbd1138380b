package rules

import (
	"regexp"
	"strings"
)

// Extraction is the key/value pair pulled from an identity-bearing utterance.
type Extraction struct {
	Key   string
	Value string
}

// extractor pairs a matcher with a function that turns its submatches into
// a key/value pair. The cascade below runs in order and the first match wins,
// mirroring the rule precedence: multiple matches are impossible by
// construction since earlier entries short-circuit.
type extractor struct {
	re  *regexp.Regexp
	key string // "" means the key is derived dynamically from the match
	fn  func(m []string) Extraction
}

var extractors = []extractor{
	// "my name is X" / "I'm X" / "I am X" - the "I'm X" / "I am X" forms are
	// capitalization-sensitive, so this cascade runs against the original-case
	// text, not lowercased.
	{re: regexp.MustCompile(`(?i)^my name is\s+([A-Z][\w'-]*)`), key: "name"},
	{re: regexp.MustCompile(`^I'?m\s+([A-Z][\w'-]*)`), key: "name"},
	{re: regexp.MustCompile(`^I am\s+([A-Z][\w'-]*)`), key: "name"},

	// Dietary trait.
	{re: regexp.MustCompile(`(?i)^i'?m\s+(?:an?\s+)?(vegetarian|vegan|pescatarian|flexitarian)\b`), key: "diet"},
	{re: regexp.MustCompile(`(?i)^i am\s+(?:an?\s+)?(vegetarian|vegan|pescatarian|flexitarian)\b`), key: "diet"},

	// Religion.
	{re: regexp.MustCompile(`(?i)^i am\s+(catholic|muslim|hindu|buddhist|jewish|atheist|agnostic|christian)\b`), key: "religion"},
	{re: regexp.MustCompile(`(?i)^i'?m\s+(catholic|muslim|hindu|buddhist|jewish|atheist|agnostic|christian)\b`), key: "religion"},

	// Language.
	{re: regexp.MustCompile(`(?i)^i speak\s+([\w\- ]+)`), key: "language"},

	// Gender / generic trait declaration.
	{re: regexp.MustCompile(`(?i)^i'?m\s+(male|female|non-binary|transgender|nonbinary)\b`), key: "gender"},

	// Avoid-eat / avoid-drink.
	{re: regexp.MustCompile(`(?i)^i don'?t eat\s+([\w\- ]+)`), key: "avoid_eat"},
	{re: regexp.MustCompile(`(?i)^i don'?t drink\s+([\w\- ]+)`), key: "avoid_drink"},

	// Allergy.
	{re: regexp.MustCompile(`(?i)^i'?m allergic to\s+([\w\- ]+)`), key: "allergy"},
	{re: regexp.MustCompile(`(?i)^i am allergic to\s+([\w\- ]+)`), key: "allergy"},

	// Preferred address.
	{re: regexp.MustCompile(`(?i)^(?:please )?call me\s+([\w'-]+)`), key: "preferred_name"},

	// Generic "my {diet|religion|language|gender} is W".
	{
		re: regexp.MustCompile(`(?i)^my (diet|religion|language|gender) is\s+([\w\- ]+)`),
		fn: func(m []string) Extraction {
			return Extraction{Key: strings.ToLower(m[1]), Value: strings.TrimSpace(m[2])}
		},
	},
}

// Extract runs the deterministic extraction cascade against text and returns
// the first matching key/value pair. It returns (Extraction{}, false) when no
// pattern matches, at which point the caller should reject the identity write
// with an unsuccessful (not persisted) result rather than an error.
func Extract(text string) (Extraction, bool) {
	trimmed := strings.TrimSpace(text)

	for _, ex := range extractors {
		m := ex.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if ex.fn != nil {
			return ex.fn(m), true
		}
		return Extraction{Key: ex.key, Value: strings.TrimSpace(m[1])}, true
	}
	return Extraction{}, false
}
