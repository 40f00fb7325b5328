package mousai

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai/storage"
)

// SQLiteSettings adapts storage.DBClient to the Settings interface.
type SQLiteSettings struct {
	db *storage.DBClient
}

// NewSQLiteSettings opens (creating if needed) the settings database.
func NewSQLiteSettings(dbPath string) (*SQLiteSettings, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &SQLiteSettings{db: db}, nil
}

// Token returns the stored API token, or "" if none was set.
func (s *SQLiteSettings) Token() (string, error) {
	token, err := s.db.GetSetting(storage.KeyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return token, err
}

func (s *SQLiteSettings) SetToken(token string) error {
	if token == "" {
		return s.db.DeleteSetting(storage.KeyToken)
	}
	return s.db.SetSetting(storage.KeyToken, token)
}

// ListenDuration returns the stored listen duration, or 0 if unset.
func (s *SQLiteSettings) ListenDuration() (time.Duration, error) {
	v, err := s.db.GetSetting(storage.KeyListenSeconds)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (s *SQLiteSettings) SetListenDuration(d time.Duration) error {
	return s.db.SetSetting(storage.KeyListenSeconds, strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
}

func (s *SQLiteSettings) History() ([]Song, error) {
	rows, err := s.db.ListHistory()
	if err != nil {
		return nil, err
	}

	songs := make([]Song, len(rows))
	for i, r := range rows {
		songs[i] = Song{
			Title:        r.Title,
			Artist:       r.Artist,
			SongLink:     r.SongLink,
			PreviewURL:   r.PreviewURL,
			ArtworkURL:   r.ArtworkURL,
			RecognizedAt: r.RecognizedAt,
		}
		for _, l := range r.ExternalLinks {
			songs[i].ExternalLinks = append(songs[i].ExternalLinks, ExternalLink{Provider: l.Provider, URL: l.URL})
		}
	}
	return songs, nil
}

func (s *SQLiteSettings) SetHistory(songs []Song) error {
	rows := make([]storage.HistoryEntry, len(songs))
	for i, song := range songs {
		rows[i] = storage.HistoryEntry{
			Title:        song.Title,
			Artist:       song.Artist,
			SongLink:     song.SongLink,
			PreviewURL:   song.PreviewURL,
			ArtworkURL:   song.ArtworkURL,
			RecognizedAt: song.RecognizedAt,
		}
		for _, l := range song.ExternalLinks {
			rows[i].ExternalLinks = append(rows[i].ExternalLinks, storage.Link{Provider: l.Provider, URL: l.URL})
		}
	}
	return s.db.ReplaceHistory(rows)
}

func (s *SQLiteSettings) Close() error {
	return s.db.Close()
}

// tokenOverride answers Token from a value given at startup and leaves the
// rest to Settings. A token saved later replaces that value.
type tokenOverride struct {
	Settings

	mu    sync.Mutex
	token string
}

func (s *tokenOverride) Token() (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return s.Settings.Token()
	}
	return token, nil
}

func (s *tokenOverride) SetToken(token string) error {
	if err := s.Settings.SetToken(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// WithStaticToken returns settings whose Token is token until SetToken
// stores another one. An empty token returns settings unchanged.
func WithStaticToken(settings Settings, token string) Settings {
	if token == "" {
		return settings
	}
	return &tokenOverride{Settings: settings, token: token}
}
