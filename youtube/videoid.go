package youtube

import (
	"net/url"
	"strings"
)

// IsYouTubeURL reports whether the URL plausibly points at YouTube.
func IsYouTubeURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be")
}

// ExtractVideoID pulls the video id out of the supported YouTube URL forms:
// watch?v=, /shorts/<id>, /embed/<id>, /live/<id>, and youtu.be/<id>.
// Returns empty when no id can be determined.
func ExtractVideoID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "youtube"):
		if v := parsed.Query().Get("v"); v != "" {
			return v
		}
		parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	case strings.Contains(host, "youtu.be"):
		return strings.TrimPrefix(strings.TrimSuffix(parsed.Path, "/"), "/")
	}
	return ""
}
