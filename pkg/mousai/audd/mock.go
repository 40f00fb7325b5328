package audd

import (
	"context"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai"
)

// Mock answers every clip with the same recorded AudD match. It never
// touches the network and ignores the token.
type Mock struct {
	Delay time.Duration
}

func (m Mock) Identify(ctx context.Context, audioPath, token string) mousai.RecognitionResult {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return mousai.TransportFailure(ctx.Err())
		}
	}

	resp, err := parseResponse([]byte(mockResponse))
	if err != nil {
		return mousai.TransportFailure(err)
	}
	return normalize(resp, func(string) string { return mockPreview })
}

const mockPreview = "https://audio-ssl.itunes.apple.com/itunes-assets/AudioPreview118/v4/65/07/f5/6507f5c5-dba8-f2d5-d56b-39dbb62a5f60/mzaf_1124211745011045566.plus.aac.p.m4a"

const mockResponse = `{
  "status": "success",
  "result": {
    "artist": "Imagine Dragons",
    "title": "Warriors",
    "album": "Warriors",
    "release_date": "2014-09-18",
    "label": "Universal Music",
    "timecode": "00:40",
    "song_link": "https://lis.tn/jDDyRv",
    "apple_music": {
      "url": "https://music.apple.com/us/album/warriors/1440831203?i=1440831624"
    },
    "spotify": {
      "album": {
        "images": [
          {"height": 640, "url": "https://i.scdn.co/image/d3acaeb069f37d8e257221f7224c813c5fa6024e", "width": 640},
          {"height": 300, "url": "https://i.scdn.co/image/b039549954758689330893bd4a92585092a81cf5", "width": 300},
          {"height": 64, "url": "https://i.scdn.co/image/67407947517062a649d86e06c7fa17670f7f09eb", "width": 64}
        ]
      },
      "external_urls": {"spotify": "https://open.spotify.com/track/1lgN0A2Vki2FTON5PYq42m"}
    }
  }
}`
