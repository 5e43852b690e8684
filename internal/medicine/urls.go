package medicine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Reserved path segments of the target site.
const (
	DetailSegment  = "/medicine/"
	GenericSegment = "/generic/"
	listingPath    = "/all-medicines/"
)

var (
	detailPathPattern = regexp.MustCompile(regexp.QuoteMeta(DetailSegment) + `([^/]+)\.html`)
	separators        = strings.NewReplacer("/", "_", "?", "_", "=", "_", "&", "_", ":", "_")
)

// IsDetailHref reports whether href points at a product detail page.
func IsDetailHref(href string) bool {
	return detailPathPattern.MatchString(href)
}

// IsGenericHref reports whether href points at a generic ingredient page.
func IsGenericHref(href string) bool {
	return strings.Contains(href, GenericSegment)
}

// ListingURL builds the listing page URL for a single letter.
func ListingURL(baseURL string, letter rune) (string, error) {
	if letter < 'a' || letter > 'z' {
		return "", fmt.Errorf("letter must be a-z, got %q", letter)
	}
	return strings.TrimRight(baseURL, "/") + listingPath + string(letter), nil
}

// Resolve turns href into an absolute URL against base and drops the fragment.
func Resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	abs.Fragment = ""
	return abs.String(), nil
}

// ExternalID derives the durable identity of a detail URL: the slug between
// "/medicine/" and ".html", or the base-relative path with separators replaced.
func ExternalID(baseURL, detailURL string) string {
	if m := detailPathPattern.FindStringSubmatch(detailURL); m != nil {
		return m[1]
	}
	rel := strings.TrimPrefix(detailURL, strings.TrimRight(baseURL, "/"))
	if id := separators.Replace(rel); strings.Trim(id, "_") != "" {
		return id
	}
	return separators.Replace(detailURL)
}
