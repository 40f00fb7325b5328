// Package config loads front-end configuration: built-in defaults, then an
// optional YAML file, then MOUSAI_* environment variables, then flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/mousai/audd"
	"github.com/himanishpuri/mousai/pkg/mousai/audio"
	"github.com/himanishpuri/mousai/pkg/mousai/storage"
	"github.com/himanishpuri/mousai/pkg/utils"
)

const appName = "mousai"

type Config struct {
	DBPath    string          `yaml:"db_path"`
	CacheDir  string          `yaml:"cache_dir"`
	LogLevel  string          `yaml:"log_level"`
	AudD      AudDConfig      `yaml:"audd"`
	Recording RecordingConfig `yaml:"recording"`
	Server    ServerConfig    `yaml:"server"`
}

type AudDConfig struct {
	Token    string        `yaml:"token"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Mock     bool          `yaml:"mock"`
}

type RecordingConfig struct {
	ListenDuration   time.Duration `yaml:"listen_duration"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	SkipSilent       bool          `yaml:"skip_silent"`
	Format           string        `yaml:"format"`
	Device           string        `yaml:"device"`
	Source           string        `yaml:"source"`
	InputFormat      string        `yaml:"input_format"`
	TempDir          string        `yaml:"temp_dir"` // default <cache_dir>/tmp
	KeepRecordings   bool          `yaml:"keep_recordings"`
	FFmpeg           string        `yaml:"ffmpeg"`
	FFprobe          string        `yaml:"ffprobe"`
	Pactl            string        `yaml:"pactl"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:   filepath.Join(utils.DataDir(appName), storage.DefaultDBFile),
		CacheDir: utils.CacheDir(appName),
		LogLevel: "INFO",
		AudD: AudDConfig{
			Endpoint: audd.DefaultEndpoint,
			Timeout:  30 * time.Second,
		},
		Recording: RecordingConfig{
			ListenDuration:   5 * time.Second,
			SilenceThreshold: mousai.DefaultSilenceThreshold,
			SkipSilent:       true,
			Format:           audio.FormatOgg,
			Source:           "microphone",
			InputFormat:      "pulse",
			FFmpeg:           "ffmpeg",
			FFprobe:          "ffprobe",
			Pactl:            "pactl",
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// MOUSAI_CONFIG is consulted; a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MOUSAI_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.DBPath = envStr("MOUSAI_DB_PATH", c.DBPath)
	c.CacheDir = envStr("MOUSAI_CACHE_DIR", c.CacheDir)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.AudD.Token = envStr("MOUSAI_TOKEN", c.AudD.Token)
	c.AudD.Endpoint = envStr("MOUSAI_AUDD_URL", c.AudD.Endpoint)
	c.Recording.Format = envStr("MOUSAI_FORMAT", c.Recording.Format)
	c.Recording.Device = envStr("MOUSAI_DEVICE", c.Recording.Device)
	c.Recording.Source = envStr("MOUSAI_SOURCE", c.Recording.Source)
	c.Recording.InputFormat = envStr("MOUSAI_INPUT_FORMAT", c.Recording.InputFormat)

	var errs []error
	if v := os.Getenv("MOUSAI_LISTEN_SECONDS"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOUSAI_LISTEN_SECONDS: %w", err))
		} else {
			c.Recording.ListenDuration = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("MOUSAI_SILENCE_DB"); v != "" {
		db, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOUSAI_SILENCE_DB: %w", err))
		} else {
			c.Recording.SilenceThreshold = db
		}
	}
	if v := os.Getenv("MOUSAI_SKIP_SILENT"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOUSAI_SKIP_SILENT: %w", err))
		} else {
			c.Recording.SkipSilent = skip
		}
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.Recording.ListenDuration <= 0 {
		errs = append(errs, fmt.Errorf("listen_duration must be positive, got %s", c.Recording.ListenDuration))
	}
	if !audio.ValidFormat(c.Recording.Format) {
		errs = append(errs, fmt.Errorf("unsupported recording format %q", c.Recording.Format))
	}
	if _, err := audio.ParseSource(c.Recording.Source); err != nil {
		errs = append(errs, err)
	}
	if !c.AudD.Mock && !utils.IsHTTPURL(c.AudD.Endpoint) {
		errs = append(errs, fmt.Errorf("invalid AudD endpoint %q", c.AudD.Endpoint))
	}
	if c.Recording.SilenceThreshold > 0 {
		errs = append(errs, fmt.Errorf("silence_threshold is in dBFS and must not be positive, got %g", c.Recording.SilenceThreshold))
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// TempDir is where recordings are written before upload.
func (c *Config) TempDir() string {
	if c.Recording.TempDir != "" {
		return c.Recording.TempDir
	}
	return filepath.Join(c.CacheDir, "tmp")
}

func (c *Config) Source() audio.Source {
	src, _ := audio.ParseSource(c.Recording.Source)
	return src
}

// Recorder builds the ffmpeg recorder described by the configuration.
func (c *Config) Recorder(log *logger.Logger) *audio.FFmpegRecorder {
	rec := audio.NewFFmpegRecorder()
	rec.Binary = c.Recording.FFmpeg
	rec.InputFormat = c.Recording.InputFormat
	rec.Format = c.Recording.Format
	rec.Log = log
	return rec
}

func (c *Config) Resolver() *audio.PactlResolver {
	return &audio.PactlResolver{
		Binary: c.Recording.Pactl,
		Source: c.Source(),
		Device: c.Recording.Device,
	}
}

// Recognizer returns the AudD client, or the offline mock.
func (c *Config) Recognizer(log *logger.Logger) mousai.Recognizer {
	if c.AudD.Mock {
		return audd.Mock{}
	}
	client := audd.NewClient(c.AudD.Endpoint)
	client.HTTP.Timeout = c.AudD.Timeout
	if log != nil {
		client.Log = log
	}
	return client
}

// ControllerOptions maps the recording settings onto controller options.
func (c *Config) ControllerOptions(log *logger.Logger) []mousai.Option {
	return []mousai.Option{
		mousai.WithListenDuration(c.Recording.ListenDuration),
		mousai.WithSilenceThreshold(c.Recording.SilenceThreshold),
		mousai.WithSkipSilent(c.Recording.SkipSilent),
		mousai.WithTempDir(c.TempDir()),
		mousai.WithKeepRecordings(c.Recording.KeepRecordings),
		mousai.WithDevice(c.Recording.Device),
		mousai.WithSource(c.Source()),
		mousai.WithLogger(log.With("controller")),
		mousai.WithRecorder(mousai.NewFFmpegRecorder(c.Recorder(log.With("recorder")))),
		mousai.WithResolver(c.Resolver()),
		mousai.WithProber(audio.FFprobe{Binary: c.Recording.FFprobe}),
	}
}

// Flags holds command line overrides. Only flags that were set on the
// command line are applied.
type Flags struct {
	ConfigPath string

	fs       *flag.FlagSet
	dbPath   string
	cacheDir string
	token    string
	endpoint string
	logLevel string
	device   string
	source   string
	format   string
	listen   time.Duration
	silence  float64
	keep     bool
	mock     bool
}

func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file (env MOUSAI_CONFIG)")
	fs.StringVar(&f.dbPath, "db", "", "Path to the SQLite settings database")
	fs.StringVar(&f.cacheDir, "cache", "", "Cache directory for recordings and artwork")
	fs.StringVar(&f.token, "token", "", "AudD API token (overrides the stored one)")
	fs.StringVar(&f.endpoint, "audd-url", "", "AudD API endpoint")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	fs.StringVar(&f.device, "device", "", "Capture device name (default: audio server default)")
	fs.StringVar(&f.source, "source", "", "What to record: microphone or desktop")
	fs.StringVar(&f.format, "format", "", "Recording format: ogg, mp3 or wav")
	fs.DurationVar(&f.listen, "duration", 0, "How long to listen")
	fs.Float64Var(&f.silence, "silence-db", 0, "Peak level (dBFS) below which a recording counts as silent")
	fs.BoolVar(&f.keep, "keep", false, "Keep recordings after recognition")
	fs.BoolVar(&f.mock, "mock", false, "Use the offline mock recognizer")
	return f
}

// IsSet reports whether the named flag was given on the command line.
func (f *Flags) IsSet(name string) bool {
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// Apply copies the flags that were set onto c.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "db":
			c.DBPath = f.dbPath
		case "cache":
			c.CacheDir = f.cacheDir
		case "token":
			c.AudD.Token = strings.TrimSpace(f.token)
		case "audd-url":
			c.AudD.Endpoint = f.endpoint
		case "log-level":
			c.LogLevel = f.logLevel
		case "device":
			c.Recording.Device = f.device
		case "source":
			c.Recording.Source = f.source
		case "format":
			c.Recording.Format = f.format
		case "duration":
			c.Recording.ListenDuration = f.listen
		case "silence-db":
			c.Recording.SilenceThreshold = f.silence
		case "keep":
			c.Recording.KeepRecordings = f.keep
		case "mock":
			c.AudD.Mock = f.mock
		}
	})
}

// Settings puts the configured token, if any, in front of the stored one.
// The mock recognizer needs no token, so a placeholder is used.
func (c *Config) Settings(stored mousai.Settings) mousai.Settings {
	token := c.AudD.Token
	if token == "" && c.AudD.Mock {
		token = "mock"
	}
	return mousai.WithStaticToken(stored, token)
}

// UseStoredListenDuration applies a listen duration saved with the settings
// unless the environment or a flag chose one for this run.
func (c *Config) UseStoredListenDuration(stored time.Duration, f *Flags) {
	if stored <= 0 || os.Getenv("MOUSAI_LISTEN_SECONDS") != "" {
		return
	}
	if f != nil && f.IsSet("duration") {
		return
	}
	c.Recording.ListenDuration = stored
}
