// Package validate provides allow-list validation for externally supplied
// gallery URLs.
package validate

import (
	"net/url"
	"strings"
)

// MaxPathLength bounds the path of any URL accepted for crawling.
const MaxPathLength = 500

// forbiddenChars are rejected anywhere in the path.
const forbiddenChars = `<>"|?*`

// Rules holds the allow-list configuration for a validator.
type Rules struct {
	// AllowedHost is the single host crawl roots and image URLs may point at.
	AllowedHost string
	// PathPrefix is the required leading path segment, e.g. "/__metro/gallery/".
	PathPrefix string
}

// Validator checks caller-supplied URLs against a fixed allow-list. It is a
// pure predicate; construction never fails and checking has no side effects.
type Validator struct {
	rules Rules
}

// New creates a validator for the given rules.
func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// IsAllowed reports whether a URL may be fetched. Every rule must hold:
// https scheme, exact host match, configured path prefix, no traversal or
// doubled slash, no forbidden characters, bounded path length, and no query
// or fragment.
func (v *Validator) IsAllowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "https" {
		return false
	}

	if !strings.EqualFold(parsed.Host, v.rules.AllowedHost) {
		return false
	}

	// Use the raw (escaped) path so encoded traversal sequences are visible.
	path := parsed.EscapedPath()
	if v.rules.PathPrefix != "" && !strings.HasPrefix(path, v.rules.PathPrefix) {
		return false
	}

	if len(path) > MaxPathLength {
		return false
	}

	if strings.Contains(path, "..") {
		return false
	}

	if strings.Contains(path, "//") {
		return false
	}

	if strings.ContainsAny(path, forbiddenChars) {
		return false
	}

	if parsed.RawQuery != "" {
		return false
	}

	if parsed.Fragment != "" || parsed.RawFragment != "" {
		return false
	}

	return true
}

// Reason returns a human-readable description of why a URL was rejected, or
// an empty string when the URL is allowed. Validation failures propagate to
// callers with this reason.
func (v *Validator) Reason(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "malformed URL"
	}

	if parsed.Scheme != "https" {
		return "scheme must be https"
	}

	if !strings.EqualFold(parsed.Host, v.rules.AllowedHost) {
		return "host not allowed"
	}

	path := parsed.EscapedPath()
	if v.rules.PathPrefix != "" && !strings.HasPrefix(path, v.rules.PathPrefix) {
		return "path outside allowed prefix"
	}

	if len(path) > MaxPathLength {
		return "path too long"
	}

	if strings.Contains(path, "..") {
		return "path contains traversal"
	}

	if strings.Contains(path, "//") {
		return "path contains doubled slash"
	}

	if strings.ContainsAny(path, forbiddenChars) {
		return "path contains forbidden characters"
	}

	if parsed.RawQuery != "" {
		return "query string not allowed"
	}

	if parsed.Fragment != "" || parsed.RawFragment != "" {
		return "fragment not allowed"
	}

	return ""
}
