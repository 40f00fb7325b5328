package audd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/utils"
)

// response is the top level of an AudD answer. Result stays raw so that a
// null, missing or empty result can be told apart from a malformed one.
type response struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

type result struct {
	Title       string          `json:"title"`
	Artist      string          `json:"artist"`
	Album       string          `json:"album"`
	ReleaseDate string          `json:"release_date"`
	Timecode    string          `json:"timecode"`
	SongLink    string          `json:"song_link"`
	Spotify     *spotifyData    `json:"spotify"`
	AppleMusic  *appleMusicData `json:"apple_music"`
}

type image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type spotifyData struct {
	Album struct {
		Images []image `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type appleMusicData struct {
	URL string `json:"url"`
}

func parseResponse(body []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// match decodes the result. ok is false for a null, absent or empty result.
func (r *response) match() (res *result, ok bool, err error) {
	raw := bytes.TrimSpace(r.Result)
	switch string(raw) {
	case "", "null", "{}", "[]":
		return nil, false, nil
	}
	res = &result{}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, false, fmt.Errorf("decoding result: %w", err)
	}
	return res, true, nil
}

// artworkURL is the third album image; AudD lists Spotify images largest first.
func (r *result) artworkURL() string {
	if r.Spotify == nil || len(r.Spotify.Album.Images) < 3 {
		return ""
	}
	return r.Spotify.Album.Images[2].URL
}

func (r *result) links() []mousai.ExternalLink {
	var links []mousai.ExternalLink
	if r.Spotify != nil && r.Spotify.ExternalURLs.Spotify != "" {
		links = append(links, mousai.ExternalLink{Provider: "spotify", URL: r.Spotify.ExternalURLs.Spotify})
	}
	if r.AppleMusic != nil && r.AppleMusic.URL != "" {
		links = append(links, mousai.ExternalLink{Provider: "apple_music", URL: r.AppleMusic.URL})
	}
	links = append(links, mousai.ExternalLink{Provider: "youtube", URL: utils.YouTubeSearchURL(r.Title, r.Artist)})
	return links
}

// normalize turns a decoded response into a RecognitionResult. preview
// resolves the preview URL for a song link and returns "" on any failure.
func normalize(resp *response, preview func(songLink string) string) mousai.RecognitionResult {
	if resp.Status != "success" {
		if resp.Error == nil {
			return mousai.FailedResult(fmt.Sprintf("Unexpected response status %q", resp.Status), mousai.ErrorMalformed)
		}
		failed := mousai.FailedResult(resp.Error.Message, mousai.ClassifyErrorCode(resp.Error.Code))
		failed.Code = resp.Error.Code
		return failed
	}

	res, ok, err := resp.match()
	if err != nil {
		return mousai.TransportFailure(err)
	}
	if !ok {
		return mousai.NoMatchResult()
	}
	if res.Title == "" || res.Artist == "" || res.SongLink == "" {
		return mousai.FailedResult("The recognition service returned an incomplete result.", mousai.ErrorMalformed)
	}

	song := mousai.Song{
		Title:         res.Title,
		Artist:        res.Artist,
		SongLink:      res.SongLink,
		ArtworkURL:    res.artworkURL(),
		ExternalLinks: res.links(),
		RecognizedAt:  time.Now(),
	}
	if preview != nil {
		song.PreviewURL = preview(res.SongLink)
	}
	return mousai.MatchedResult(song)
}
