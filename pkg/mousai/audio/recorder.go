package audio

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/utils"
)

// Container formats a recording can be written in.
const (
	FormatOgg = "ogg" // Opus in Ogg
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

// ValidFormat reports whether f is a supported container.
func ValidFormat(f string) bool {
	switch f {
	case FormatOgg, FormatMP3, FormatWAV:
		return true
	}
	return false
}

// FFmpegRecorder captures audio by running ffmpeg against the audio server.
// Besides the encoded file, ffmpeg writes a mono s16le tap on stdout that is
// used for level metering (and, for WAV, is the file content itself).
type FFmpegRecorder struct {
	Binary        string // default "ffmpeg"
	InputFormat   string // ffmpeg -f for the input, default "pulse"
	Format        string // FormatOgg, FormatMP3 or FormatWAV
	SampleRate    int    // sample rate of the metering tap
	LevelInterval time.Duration
	StopTimeout   time.Duration
	Log           *logger.Logger
}

// NewFFmpegRecorder returns a recorder with the defaults used by the app.
func NewFFmpegRecorder() *FFmpegRecorder {
	return &FFmpegRecorder{
		Binary:        "ffmpeg",
		InputFormat:   "pulse",
		Format:        FormatOgg,
		SampleRate:    16000,
		LevelInterval: 100 * time.Millisecond,
		StopTimeout:   3 * time.Second,
	}
}

func (r *FFmpegRecorder) withDefaults() FFmpegRecorder {
	c := *r
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.Format == "" {
		c.Format = FormatOgg
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = 100 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 3 * time.Second
	}
	if c.Log == nil {
		c.Log = logger.GetLogger().With("recorder")
	}
	return c
}

// Extension returns the file extension recordings are written with.
func (r *FFmpegRecorder) Extension() string {
	c := r.withDefaults()
	return c.Format
}

// args builds the ffmpeg command line for one capture.
func (r *FFmpegRecorder) args(device, outputPath string) []string {
	rate := strconv.Itoa(r.SampleRate)
	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error", "-y",
		"-f", r.InputFormat, "-i", device,
	}

	switch r.Format {
	case FormatOgg:
		args = append(args, "-map", "0:a", "-ac", "1", "-c:a", "libopus", "-b:a", "64k", "-f", "ogg", outputPath)
	case FormatMP3:
		args = append(args, "-map", "0:a", "-ac", "1", "-c:a", "libmp3lame", "-q:a", "4", "-f", "mp3", outputPath)
	}

	return append(args, "-map", "0:a", "-ac", "1", "-ar", rate, "-f", "s16le", "pipe:1")
}

// Start launches ffmpeg and returns the running capture. The capture is
// cancelled if ctx ends before Stop or Cancel.
func (r *FFmpegRecorder) Start(ctx context.Context, device, outputPath string) (*Capture, error) {
	cfg := r.withDefaults()

	if strings.TrimSpace(device) == "" {
		return nil, ErrDeviceUnavailable
	}
	if !ValidFormat(cfg.Format) {
		return nil, fmt.Errorf("unsupported recording format %q", cfg.Format)
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if err := utils.MakeDir(filepath.Dir(outputPath)); err != nil {
		return nil, fmt.Errorf("creating recording dir: %w", err)
	}

	var sink *wavSink
	if cfg.Format == FormatWAV {
		var err error
		if sink, err = newWavSink(outputPath, cfg.SampleRate); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(cfg.Binary, cfg.args(device, outputPath)...)
	c, err := startCapture(cmd, outputPath, sink, cfg)
	if err != nil {
		if sink != nil {
			sink.Abort()
			utils.DeleteFile(outputPath)
		}
		return nil, fmt.Errorf("%w: starting ffmpeg on %q: %v", ErrDeviceUnavailable, device, err)
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Cancel()
		case <-c.exited:
		}
	}()

	cfg.Log.Debugf("Recording %s from %s (%s)", outputPath, device, cfg.Format)
	return c, nil
}
