package utils

import (
	"net/url"
	"strings"
)

const youtubeSearchURL = "https://www.youtube.com/results"

// YouTubeSearchURL builds a search link for a song. Returns "" when both parts are empty.
func YouTubeSearchURL(title, artist string) string {
	query := strings.TrimSpace(strings.TrimSpace(artist) + " " + strings.TrimSpace(title))
	if query == "" {
		return ""
	}
	return youtubeSearchURL + "?" + url.Values{"search_query": {query}}.Encode()
}

// IsHTTPURL reports whether s is an absolute http(s) URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
