package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/mousai/audd"
	"github.com/himanishpuri/mousai/pkg/mousai/audio"
)

var envVars = []string{
	"MOUSAI_CONFIG", "MOUSAI_DB_PATH", "MOUSAI_CACHE_DIR", "MOUSAI_TOKEN",
	"MOUSAI_AUDD_URL", "MOUSAI_LISTEN_SECONDS", "MOUSAI_SILENCE_DB",
	"MOUSAI_SKIP_SILENT", "MOUSAI_FORMAT", "MOUSAI_DEVICE", "MOUSAI_SOURCE",
	"MOUSAI_INPUT_FORMAT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mousai.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Recording.ListenDuration != 5*time.Second {
		t.Errorf("ListenDuration = %v, want 5s", cfg.Recording.ListenDuration)
	}
	if cfg.Recording.SilenceThreshold != -349 {
		t.Errorf("SilenceThreshold = %v, want -349", cfg.Recording.SilenceThreshold)
	}
	if !cfg.Recording.SkipSilent {
		t.Error("SkipSilent should default to true")
	}
	if cfg.Recording.Format != audio.FormatOgg {
		t.Errorf("Format = %q, want ogg", cfg.Recording.Format)
	}
	if cfg.AudD.Endpoint != audd.DefaultEndpoint {
		t.Errorf("Endpoint = %q", cfg.AudD.Endpoint)
	}
	if cfg.AudD.Token != "" {
		t.Errorf("Token = %q, want empty", cfg.AudD.Token)
	}
	if !strings.HasSuffix(cfg.DBPath, "mousai.sqlite3") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.TempDir() != filepath.Join(cfg.CacheDir, "tmp") {
		t.Errorf("TempDir = %q", cfg.TempDir())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
db_path: /from/file.sqlite3
audd:
  token: file-token
  timeout: 10s
recording:
  listen_duration: 8s
  format: mp3
  source: desktop
  skip_silent: false
server:
  port: 9090
`)
	t.Setenv("MOUSAI_TOKEN", "env-token")
	t.Setenv("MOUSAI_LISTEN_SECONDS", "2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/from/file.sqlite3" {
		t.Errorf("DBPath = %q, want file value", cfg.DBPath)
	}
	if cfg.AudD.Token != "env-token" {
		t.Errorf("Token = %q, env should override file", cfg.AudD.Token)
	}
	if cfg.AudD.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.AudD.Timeout)
	}
	if cfg.Recording.ListenDuration != 2500*time.Millisecond {
		t.Errorf("ListenDuration = %v, want 2.5s from env", cfg.Recording.ListenDuration)
	}
	if cfg.Recording.Format != audio.FormatMP3 || cfg.Source() != audio.SourceDesktop {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if cfg.Recording.SkipSilent {
		t.Error("skip_silent from file was ignored")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	// untouched values keep their defaults
	if cfg.Recording.InputFormat != "pulse" {
		t.Errorf("InputFormat = %q", cfg.Recording.InputFormat)
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOUSAI_CONFIG", writeYAML(t, "log_level: debug\n"))

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
	if _, err := Load(writeYAML(t, "recording: [nope")); err == nil {
		t.Error("expected error for invalid YAML")
	}

	t.Setenv("MOUSAI_SILENCE_DB", "loud")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "MOUSAI_SILENCE_DB") {
		t.Errorf("expected MOUSAI_SILENCE_DB error, got %v", err)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOUSAI_FORMAT", "mp3")
	t.Setenv("MOUSAI_DEVICE", "env-device")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := BindFlags(fs)
	if err := fs.Parse([]string{"-format", "wav", "-duration", "3s", "-mock"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(flags.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	flags.Apply(cfg)

	if cfg.Recording.Format != audio.FormatWAV {
		t.Errorf("Format = %q, flag should win", cfg.Recording.Format)
	}
	if cfg.Recording.Device != "env-device" {
		t.Errorf("Device = %q, unset flag must not clobber env", cfg.Recording.Device)
	}
	if cfg.Recording.ListenDuration != 3*time.Second || !cfg.AudD.Mock {
		t.Errorf("recording = %+v, mock = %v", cfg.Recording, cfg.AudD.Mock)
	}
	if _, ok := cfg.Recognizer(nil).(audd.Mock); !ok {
		t.Error("mock flag did not select the mock recognizer")
	}
}

func TestUseStoredListenDuration(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.UseStoredListenDuration(0, nil)
	if cfg.Recording.ListenDuration != 5*time.Second {
		t.Errorf("unset stored value changed duration to %v", cfg.Recording.ListenDuration)
	}
	cfg.UseStoredListenDuration(8*time.Second, nil)
	if cfg.Recording.ListenDuration != 8*time.Second {
		t.Errorf("stored value ignored: %v", cfg.Recording.ListenDuration)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := BindFlags(fs)
	fs.Parse([]string{"-duration", "3s"})
	cfg = Default()
	flags.Apply(cfg)
	cfg.UseStoredListenDuration(8*time.Second, flags)
	if cfg.Recording.ListenDuration != 3*time.Second {
		t.Errorf("flag should beat stored value, got %v", cfg.Recording.ListenDuration)
	}

	t.Setenv("MOUSAI_LISTEN_SECONDS", "2")
	cfg = Default()
	cfg.UseStoredListenDuration(8*time.Second, nil)
	if cfg.Recording.ListenDuration != 5*time.Second {
		t.Errorf("env set: stored value should not apply, got %v", cfg.Recording.ListenDuration)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Recording.Format = "flac"
	cfg.Recording.ListenDuration = 0
	cfg.Recording.Source = "radio"
	cfg.LogLevel = "chatty"
	cfg.AudD.Endpoint = "not a url"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"flac", "listen_duration", "radio", "chatty", "endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestSettingsTokenOverride(t *testing.T) {
	stored := &stubSettings{token: "stored"}

	cfg := Default()
	if tok, _ := cfg.Settings(stored).Token(); tok != "stored" {
		t.Errorf("without override token = %q", tok)
	}

	cfg.AudD.Token = "flag"
	if tok, _ := cfg.Settings(stored).Token(); tok != "flag" {
		t.Errorf("with override token = %q", tok)
	}

	cfg.AudD.Token = ""
	cfg.AudD.Mock = true
	if tok, _ := cfg.Settings(&stubSettings{}).Token(); tok == "" {
		t.Error("mock mode should not require a token")
	}
}

func TestSavedTokenReplacesOverride(t *testing.T) {
	stored := &stubSettings{token: "stored"}
	cfg := Default()
	cfg.AudD.Token = "from-env"
	settings := cfg.Settings(stored)

	if err := settings.SetToken("from-api"); err != nil {
		t.Fatal(err)
	}
	if tok, _ := settings.Token(); tok != "from-api" {
		t.Errorf("token after SetToken = %q, want from-api", tok)
	}
	if stored.token != "from-api" {
		t.Errorf("stored token = %q, SetToken should persist", stored.token)
	}

	if err := settings.SetToken(""); err != nil {
		t.Fatal(err)
	}
	if tok, _ := settings.Token(); tok != "" {
		t.Errorf("token after clearing = %q, want empty", tok)
	}
}

func TestControllerOptions(t *testing.T) {
	cfg := Default()
	cfg.Recording.TempDir = t.TempDir()

	c, err := mousai.NewController(audd.Mock{}, &stubSettings{}, cfg.ControllerOptions(quietLogger())...)
	if err != nil {
		t.Fatalf("NewController with config options failed: %v", err)
	}
	if c.State() != mousai.StateIdle {
		t.Errorf("state = %v", c.State())
	}
}

type stubSettings struct {
	token string
	songs []mousai.Song
}

func (s *stubSettings) Token() (string, error)          { return s.token, nil }
func (s *stubSettings) SetToken(token string) error     { s.token = token; return nil }
func (s *stubSettings) History() ([]mousai.Song, error) { return s.songs, nil }
func (s *stubSettings) SetHistory(songs []mousai.Song) error {
	s.songs = songs
	return nil
}

func quietLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	return logger.New(cfg)
}
