package audd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
)

const (
	DefaultEndpoint = "https://api.audd.io/"
	// ReturnProviders asks AudD for the metadata blocks used for artwork and links.
	ReturnProviders = "spotify,apple_music"

	maxResponseSize = 4 << 20
)

// Client submits clips to the AudD API. It never retries.
type Client struct {
	Endpoint    string
	HTTP        *http.Client
	PageTimeout time.Duration // song page fetch for the preview
	Log         mousai.Logger
}

func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint:    endpoint,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		PageTimeout: 5 * time.Second,
		Log:         logger.GetLogger().With("audd"),
	}
}

// Identify uploads the clip and normalizes the answer. Every failure is
// reported as a Failed result.
func (c *Client) Identify(ctx context.Context, audioPath, token string) mousai.RecognitionResult {
	body, err := c.submit(ctx, audioPath, token)
	if err != nil {
		c.log().Warnf("Submitting %s: %v", audioPath, err)
		return mousai.TransportFailure(err)
	}

	resp, err := parseResponse(body)
	if err != nil {
		c.log().Warnf("Bad response from %s: %v", c.Endpoint, err)
		return mousai.TransportFailure(err)
	}

	result := normalize(resp, func(link string) string {
		return c.preview(ctx, link)
	})
	c.log().Debugf("AudD status %q -> %s", resp.Status, result.Kind)
	return result
}

func (c *Client) submit(ctx context.Context, audioPath, token string) ([]byte, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", audioPath, err)
	}
	w.WriteField("api_token", token)
	w.WriteField("return", ReturnProviders)
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if res.StatusCode != http.StatusOK && !looksLikeJSON(body) {
		return nil, fmt.Errorf("API responded with %s", res.Status)
	}
	return body, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func looksLikeJSON(body []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(body)), "{")
}

func (c *Client) log() mousai.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logger.GetLogger().With("audd")
}
