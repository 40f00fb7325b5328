package mousai

import (
	"context"

	"github.com/himanishpuri/mousai/pkg/mousai/audio"
)

// ffmpegRecorder adapts audio.FFmpegRecorder to the Recorder interface.
type ffmpegRecorder struct {
	rec *audio.FFmpegRecorder
}

// NewFFmpegRecorder wraps rec, or a recorder with default settings when rec is nil.
func NewFFmpegRecorder(rec *audio.FFmpegRecorder) Recorder {
	if rec == nil {
		rec = audio.NewFFmpegRecorder()
	}
	return &ffmpegRecorder{rec: rec}
}

func (r *ffmpegRecorder) Start(ctx context.Context, device, outputPath string) (Capture, error) {
	c, err := r.rec.Start(ctx, device, outputPath)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ffmpegRecorder) Extension() string {
	return r.rec.Extension()
}
