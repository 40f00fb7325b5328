package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/utils"
)

const maxImageSize = 10 << 20

// ErrNoArtwork is returned for songs without an artwork URL.
var ErrNoArtwork = errors.New("song has no artwork")

// Store caches album art under Dir, one file per (title, artist).
type Store struct {
	Dir    string
	Client *http.Client
}

// NewStore keeps images in <cacheDir>/artwork.
func NewStore(cacheDir string) *Store {
	return &Store{
		Dir:    filepath.Join(cacheDir, "artwork"),
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Path is where the artwork for a song is cached.
func (s *Store) Path(title, artist string) string {
	name := utils.SanitizeFileName(title) + "-" + utils.SanitizeFileName(artist) + ".jpg"
	return filepath.Join(s.Dir, name)
}

// Fetch downloads the song's artwork unless it is already cached and
// returns the local path.
func (s *Store) Fetch(ctx context.Context, song mousai.Song) (string, error) {
	dst := s.Path(song.Title, song.Artist)
	if utils.FileExists(dst) {
		return dst, nil
	}
	if song.ArtworkURL == "" {
		return "", ErrNoArtwork
	}
	if !utils.IsHTTPURL(song.ArtworkURL) {
		return "", fmt.Errorf("invalid artwork url %q", song.ArtworkURL)
	}

	if err := utils.MakeDir(s.Dir); err != nil {
		return "", fmt.Errorf("creating artwork dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, song.ArtworkURL, nil)
	if err != nil {
		return "", err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading artwork: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading artwork: %s", res.Status)
	}

	// temp file + rename so readers never see a partial image
	tmp, err := os.CreateTemp(s.Dir, ".artwork-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, io.LimitReader(res.Body, maxImageSize))
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		utils.DeleteFile(tmpPath)
		return "", fmt.Errorf("writing artwork: %w", errors.Join(copyErr, closeErr))
	}

	if err := utils.MoveFile(tmpPath, dst); err != nil {
		utils.DeleteFile(tmpPath)
		return "", err
	}
	return dst, nil
}

// Remove deletes the cached artwork for a song, if any.
func (s *Store) Remove(title, artist string) error {
	return utils.DeleteFile(s.Path(title, artist))
}
