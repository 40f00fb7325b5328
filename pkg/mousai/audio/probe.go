package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// ClipInfo describes a finished recording.
type ClipInfo struct {
	Path       string
	Duration   time.Duration
	Codec      string
	Container  string
	SampleRate int
	Channels   int
	SizeBytes  int64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Format   string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// ErrEmptyClip is returned when a recording holds no audio.
var ErrEmptyClip = errors.New("recording is empty")

// FFprobe probes clips with the ffprobe binary at Binary.
type FFprobe struct {
	Binary string
}

func (p FFprobe) Probe(ctx context.Context, path string) (*ClipInfo, error) {
	return ProbeClip(ctx, p.Binary, path)
}

// ProbeClip inspects a recording with ffprobe. binary defaults to "ffprobe".
func ProbeClip(ctx context.Context, binary, path string) (*ClipInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, ErrEmptyClip
	}

	if binary == "" {
		binary = "ffprobe"
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	info.Path = path
	info.SizeBytes = st.Size()
	return info, nil
}

func parseProbe(out []byte) (*ClipInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	stream := probe.firstAudioStream()
	if stream == nil {
		return nil, ErrEmptyClip
	}

	seconds, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	if seconds == 0 {
		seconds, _ = strconv.ParseFloat(stream.Duration, 64)
	}
	sampleRate, _ := strconv.Atoi(stream.SampleRate)

	return &ClipInfo{
		Duration:   time.Duration(seconds * float64(time.Second)),
		Codec:      stream.CodecName,
		Container:  probe.Format.Format,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
	}, nil
}
