// Package normalizers canonicalizes raw test case records and their text fields for comparison
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("trim", Trim)
	Register("lowercase", Lowercase)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("casefold", CaseFold)
	Register("strip_accents", StripAccents)
	Register("remove_punctuation", RemovePunctuation)
	Register("alphanumeric", Alphanumeric)
	Register("comparison_key", ComparisonKey)
	Register("tag", Tag)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// CollapseWhitespace trims and replaces every run of whitespace with a single space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CaseFold applies full Unicode case folding
func CaseFold(s string) string {
	// Casers are stateful, so one per call
	return cases.Fold().String(s)
}

// StripAccents removes combining marks ("Crème" -> "Creme")
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ComparisonKey derives the key two values are compared on: accents stripped,
// case folded, punctuation turned into spaces and whitespace collapsed.
// It is never stored.
func ComparisonKey(s string) string {
	s = CaseFold(StripAccents(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return CollapseWhitespace(b.String())
}

// Tokens splits a value into comparison-key tokens
func Tokens(s string) []string {
	return strings.Fields(ComparisonKey(s))
}

// Tag canonicalizes a tag: collapsed whitespace, case folded
func Tag(s string) string {
	return CaseFold(CollapseWhitespace(s))
}
