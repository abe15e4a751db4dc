// Package listing parses remote directory-listing HTML into typed links.
package listing

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an anchor extracted from a listing page.
type Link struct {
	Href string
	Text string
}

// Kind classifies a listing link.
type Kind int

const (
	// Ignore marks links that carry no gallery content (parent links,
	// anchors, scripts, mailto, duplicates).
	Ignore Kind = iota
	// Folder marks links that look like subdirectories.
	Folder
	// Image marks links whose extension is on the image allow-list.
	Image
)

// imageExtensions is the allow-list for image links.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".svg":  {},
	".bmp":  {},
}

// bareFolderToken matches directory names like "HOLIDAY" or "NEW_WORK".
var bareFolderToken = regexp.MustCompile(`^[A-Z_]+$`)

// ExtractLinks parses anchor tags out of a listing document. Links are
// deduplicated by href; parent-directory, anchor, script, mailto, and empty
// links are dropped here so classification only sees candidates.
func ExtractLinks(html string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0, 32)
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		href = strings.TrimSpace(href)
		text := strings.TrimSpace(s.Text())

		if skipLink(href, text) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		links = append(links, Link{Href: href, Text: text})
	})

	return links, nil
}

// skipLink drops links that can never contribute gallery content.
func skipLink(href, text string) bool {
	if href == "" {
		return true
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return true
	}

	// Pure anchors.
	if strings.HasPrefix(href, "#") {
		return true
	}

	// Parent-directory links, by href or by visible text.
	if href == "../" || href == ".." || href == "./" {
		return true
	}
	if strings.Contains(strings.ToLower(text), "parent directory") {
		return true
	}

	return false
}

// Classify decides whether a link is a folder, an image, or noise. The
// folder heuristics are deliberately loose: remote listings render directory
// names inconsistently (trailing slash, bare upper-case token, extensionless
// name), and a false positive only costs one probe fetch.
func Classify(l Link) Kind {
	if IsImageLink(l.Href) {
		return Image
	}
	if IsFolderLink(l) {
		return Folder
	}
	return Ignore
}

// IsImageLink reports whether the href's extension is on the image allow-list.
func IsImageLink(href string) bool {
	// Strip any query/fragment remnants before extension matching.
	clean := href
	if idx := strings.IndexAny(clean, "?#"); idx != -1 {
		clean = clean[:idx]
	}

	dot := strings.LastIndex(clean, ".")
	if dot == -1 {
		return false
	}
	ext := strings.ToLower(clean[dot:])
	_, ok := imageExtensions[ext]
	return ok
}

// IsFolderLink reports whether a link looks like a subdirectory.
func IsFolderLink(l Link) bool {
	href := l.Href
	text := l.Text

	trimmed := strings.TrimSuffix(href, "/")
	base := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx != -1 {
		base = trimmed[idx+1:]
	}

	// Trailing slash is the strongest signal a listing gives us.
	if strings.HasSuffix(href, "/") && base != "" {
		return true
	}

	// Extensionless href with dotless visible text.
	if !strings.Contains(base, ".") && text != "" && !strings.Contains(text, ".") {
		return true
	}

	// All-caps naming convention without a dot.
	if base != "" && !strings.Contains(base, ".") && base == strings.ToUpper(base) {
		return true
	}
	if text != "" && !strings.Contains(text, ".") && text == strings.ToUpper(text) {
		return true
	}

	// Bare directory token like "ARCHIVE" or "NEW_WORK".
	if bareFolderToken.MatchString(base) || bareFolderToken.MatchString(text) {
		return true
	}

	return false
}

// FolderName derives a display name for a folder link, preferring the
// visible text and falling back to the last href segment.
func FolderName(l Link) string {
	if l.Text != "" {
		return strings.TrimSuffix(l.Text, "/")
	}

	trimmed := strings.TrimSuffix(l.Href, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx != -1 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

// ImageName derives a display name for an image link.
func ImageName(l Link) string {
	if l.Text != "" && !strings.EqualFold(l.Text, l.Href) {
		return l.Text
	}

	href := l.Href
	if idx := strings.IndexAny(href, "?#"); idx != -1 {
		href = href[:idx]
	}
	if idx := strings.LastIndex(href, "/"); idx != -1 {
		href = href[idx+1:]
	}
	return href
}
