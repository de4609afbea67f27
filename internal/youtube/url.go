package youtube

import (
	"fmt"
	"regexp"
)

// Video ids are exactly 11 characters of [A-Za-z0-9_-].
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?v=([A-Za-z0-9_-]{11})(?:[&#]|$)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})(?:[?&#]|$)`),
	regexp.MustCompile(`youtube\.com/live/([A-Za-z0-9_-]{11})(?:[?&#]|$)`),
	regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{11})(?:[?&#]|$)`),
}

// ExtractVideoID extracts the 11-character video id from a watch URL.
func ExtractVideoID(url string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("could not extract video ID from URL: %s", url)
}
