package audd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/himanishpuri/mousai/pkg/utils"
)

// The song page embeds its track list as `tracks = [...];`.
var tracksPattern = regexp.MustCompile(`tracks = (.*);`)

var errNoPreview = errors.New("no preview on song page")

// preview fetches the song page and returns the first track's sample URL,
// or "" when anything goes wrong.
func (c *Client) preview(ctx context.Context, songLink string) string {
	if !utils.IsHTTPURL(songLink) {
		return ""
	}

	timeout := c.PageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := c.fetchPage(ctx, songLink)
	if err == nil {
		var src string
		if src, err = extractPreview(page); err == nil {
			return src
		}
	}
	c.log().Debugf("No preview for %s: %v", songLink, err)
	return ""
}

func (c *Client) fetchPage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("song page returned %s", res.Status)
	}
	return io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
}

func extractPreview(page []byte) (string, error) {
	m := tracksPattern.FindSubmatch(page)
	if m == nil {
		return "", errNoPreview
	}

	var tracks []struct {
		Sample struct {
			Src string `json:"src"`
		} `json:"sample"`
	}
	// the greedy match may run past the array; decode only the first value
	if err := json.NewDecoder(bytes.NewReader(m[1])).Decode(&tracks); err != nil {
		return "", fmt.Errorf("decoding tracks: %w", err)
	}
	if len(tracks) == 0 || tracks[0].Sample.Src == "" {
		return "", errNoPreview
	}
	return tracks[0].Sample.Src, nil
}
