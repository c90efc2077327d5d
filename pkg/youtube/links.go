// Package youtube turns a source video URL and an in-video timestamp into
// embeddable and deep-link references.
package youtube

import (
	"fmt"
	"regexp"
	"strings"
)

var videoIDRE = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|v/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// maxFieldDigits bounds each timestamp field so the total cannot overflow.
const maxFieldDigits = 6

// ParseTimestamp converts "MM:SS" or "H:MM:SS" to seconds. Anything that is
// not two or three colon-separated runs of ASCII digits yields 0.
func ParseTimestamp(ts string) int {
	fields, ok := timestampFields(ts)
	if !ok {
		return 0
	}
	total := 0
	for _, n := range fields {
		total = total*60 + n
	}
	return total
}

// ValidTimestamp reports whether ts parses as MM:SS or H:MM:SS.
func ValidTimestamp(ts string) bool {
	_, ok := timestampFields(ts)
	return ok
}

func timestampFields(ts string) ([]int, bool) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, false
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" || len(p) > maxFieldDigits {
			return nil, false
		}
		n := 0
		for _, r := range p {
			if r < '0' || r > '9' {
				return nil, false
			}
			n = n*10 + int(r-'0')
		}
		out = append(out, n)
	}
	return out, true
}

// VideoID returns the 11-character ID from a short-link or canonical URL,
// or "" when none is present.
func VideoID(rawURL string) string {
	m := videoIDRE.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// IsShortLink reports whether rawURL uses the youtu.be form.
func IsShortLink(rawURL string) bool {
	return strings.Contains(rawURL, "youtu.be/")
}

// EmbedURL returns a player URL starting at the timestamp, or "" when the
// URL has no recognizable video ID.
func EmbedURL(rawURL, timestamp string) string {
	id := VideoID(rawURL)
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://www.youtube.com/embed/%s?start=%d", id, ParseTimestamp(timestamp))
}

// DeepLink returns a link back to the source at the timestamp, keeping the
// short-link or canonical shape of the input. Unrecognized URLs come back
// unchanged.
func DeepLink(rawURL, timestamp string) string {
	id := VideoID(rawURL)
	if id == "" {
		return rawURL
	}
	sec := ParseTimestamp(timestamp)
	if IsShortLink(rawURL) {
		return fmt.Sprintf("https://youtu.be/%s?t=%d", id, sec)
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", id, sec)
}
