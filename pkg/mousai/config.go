package mousai

import (
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai/audio"
)

// DefaultSilenceThreshold is the peak level (dBFS) under which a whole
// recording counts as silence.
const DefaultSilenceThreshold = -349.0

type Config struct {
	ListenDuration   time.Duration
	TickInterval     time.Duration
	SilenceThreshold float64
	SkipSilent       bool
	TempDir          string
	KeepRecordings   bool
	ArtworkTimeout   time.Duration
	Device           string
	Source           audio.Source
	Logger           Logger

	Recorder    Recorder
	Resolver    DeviceResolver
	Prober      ClipProber
	Artwork     ArtworkFetcher
	HistoryView HistoryView
	NoticeView  NoticeView
	StatusView  StatusView
}

type Option func(*Config)

func WithListenDuration(d time.Duration) Option {
	return func(c *Config) {
		c.ListenDuration = d
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Config) {
		c.TickInterval = d
	}
}

func WithSilenceThreshold(db float64) Option {
	return func(c *Config) {
		c.SilenceThreshold = db
	}
}

func WithSkipSilent(skip bool) Option {
	return func(c *Config) {
		c.SkipSilent = skip
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithKeepRecordings(keep bool) Option {
	return func(c *Config) {
		c.KeepRecordings = keep
	}
}

// WithDevice records from a fixed device instead of the audio server default.
func WithDevice(device string) Option {
	return func(c *Config) {
		c.Device = device
	}
}

func WithSource(src audio.Source) Option {
	return func(c *Config) {
		c.Source = src
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

func WithResolver(r DeviceResolver) Option {
	return func(c *Config) {
		c.Resolver = r
	}
}

func WithProber(p ClipProber) Option {
	return func(c *Config) {
		c.Prober = p
	}
}

func WithArtwork(a ArtworkFetcher) Option {
	return func(c *Config) {
		c.Artwork = a
	}
}

func WithArtworkTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ArtworkTimeout = d
	}
}

func WithHistoryView(v HistoryView) Option {
	return func(c *Config) {
		c.HistoryView = v
	}
}

func WithNoticeView(v NoticeView) Option {
	return func(c *Config) {
		c.NoticeView = v
	}
}

func WithStatusView(v StatusView) Option {
	return func(c *Config) {
		c.StatusView = v
	}
}

func defaultConfig() *Config {
	return &Config{
		ListenDuration:   5 * time.Second,
		TickInterval:     100 * time.Millisecond,
		SilenceThreshold: DefaultSilenceThreshold,
		SkipSilent:       true,
		ArtworkTimeout:   15 * time.Second,
		TempDir:          filepath.Join(os.TempDir(), "mousai"),
		Source:           audio.SourceMicrophone,
	}
}
