package mousai

import (
	"context"
	"errors"

	"github.com/himanishpuri/mousai/pkg/mousai/audio"
)

var (
	// ErrDeviceUnavailable is returned when no audio input can be resolved or opened.
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
	ErrBusy              = errors.New("a recording session is already in progress")
	ErrNotRecording      = errors.New("not recording")
	ErrNoToken           = errors.New("no AudD API token configured")
	ErrTimerUsed         = errors.New("timer already started")
	ErrSongNotFound      = errors.New("song not in history")
	ErrClosed            = errors.New("controller is not running")
)

// Recognizer identifies a recorded clip. It never returns an error: every
// failure is a Failed result.
type Recognizer interface {
	Identify(ctx context.Context, audioPath, token string) RecognitionResult
}

// Capture is a running recording.
type Capture interface {
	Path() string
	Levels() <-chan float64
	Done() <-chan error
	Stop() error
	Cancel() error
}

type Recorder interface {
	Start(ctx context.Context, device, outputPath string) (Capture, error)
	Extension() string
}

type DeviceResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// ClipProber inspects a finished recording before upload.
type ClipProber interface {
	Probe(ctx context.Context, path string) (*audio.ClipInfo, error)
}

// Settings is the persistent key/value store holding the token and history.
type Settings interface {
	Token() (string, error)
	SetToken(token string) error
	History() ([]Song, error)
	SetHistory(songs []Song) error
}

// ArtworkFetcher downloads album art into a local cache and returns its path.
type ArtworkFetcher interface {
	Fetch(ctx context.Context, song Song) (string, error)
}

type HistoryView interface {
	ShowHistory(songs []Song)
}

type NoticeView interface {
	ShowNotice(n Notice)
}

// StatusView is optional; it receives state changes and input levels.
type StatusView interface {
	ShowState(s State)
	ShowLevel(db float64)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
