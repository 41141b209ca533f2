package resolution

import (
	"net/url"
	"strings"
)

func parseTarget(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	return url.Parse(trimmed)
}

// IsHomepage reports whether rawURL points at a site root: empty or "/" path
// with no query and no fragment.
func IsHomepage(rawURL string) bool {
	u, err := parseTarget(rawURL)
	if err != nil {
		return false
	}
	if u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return false
	}
	return u.Path == "" || u.Path == "/"
}

// SlugFromURL returns the last non-empty path segment, or "" if there is none.
func SlugFromURL(rawURL string) string {
	u, err := parseTarget(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return seg
		}
	}
	return ""
}
