package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	pcm "github.com/himanishpuri/mousai/internal/audio"
	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/utils"
)

type captureState int

const (
	captureRunning captureState = iota
	captureStopped
	captureCancelled
)

// Capture is one running ffmpeg recording.
type Capture struct {
	path        string
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stderr      bytes.Buffer
	sink        *wavSink
	levels      chan float64
	done        chan error
	exited      chan struct{}
	stopTimeout time.Duration
	log         *logger.Logger

	mu      sync.Mutex
	state   captureState
	stopErr error
}

func startCapture(cmd *exec.Cmd, path string, sink *wavSink, cfg FFmpegRecorder) (*Capture, error) {
	c := &Capture{
		path:        path,
		cmd:         cmd,
		sink:        sink,
		levels:      make(chan float64, 64),
		done:        make(chan error, 1),
		exited:      make(chan struct{}),
		stopTimeout: cfg.StopTimeout,
		log:         cfg.Log,
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = &c.stderr
	c.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	window := int(float64(cfg.SampleRate) * cfg.LevelInterval.Seconds())
	go c.pump(stdout, pcm.NewMeter(window))
	return c, nil
}

// Path is the file the capture writes to.
func (c *Capture) Path() string { return c.path }

// Levels delivers one peak reading (dBFS) per metering window. It is closed
// when the stream ends. Readings are dropped if the consumer falls behind.
func (c *Capture) Levels() <-chan float64 { return c.levels }

// Done receives exactly once when the stream ends: nil after Stop, Cancel or
// a clean end of stream, otherwise the ffmpeg failure.
func (c *Capture) Done() <-chan error { return c.done }

func (c *Capture) currentState() captureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capture) pump(stdout io.Reader, meter *pcm.Meter) {
	readErr := meterStream(stdout, meter, c.emit, c.writeSink)

	if level, ok := meter.Flush(); ok {
		c.emit(level)
	}
	if c.sink != nil {
		if c.currentState() == captureCancelled {
			c.sink.Abort()
		} else if err := c.sink.Close(); err != nil {
			c.log.Warnf("Finalizing %s: %v", c.path, err)
		}
	}

	waitErr := c.cmd.Wait()
	close(c.levels)
	close(c.exited)

	var result error
	if c.currentState() == captureRunning {
		if waitErr != nil {
			result = fmt.Errorf("ffmpeg exited: %v: %s", waitErr, strings.TrimSpace(c.stderr.String()))
		} else if readErr != nil {
			result = fmt.Errorf("reading audio stream: %w", readErr)
		}
	}
	c.done <- result
}

func (c *Capture) emit(level float64) {
	select {
	case c.levels <- level:
	default:
	}
}

func (c *Capture) writeSink(samples []int16) error {
	if c.sink == nil {
		return nil
	}
	return c.sink.Write(samples)
}

// meterStream reads s16le PCM until EOF, reporting levels and forwarding samples.
func meterStream(r io.Reader, meter *pcm.Meter, emit func(float64), write func([]int16) error) error {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			samples, _ := pcm.DecodeS16LE(data[:even])
			carry = append([]byte(nil), data[even:]...)

			for _, level := range meter.Push(samples) {
				emit(level)
			}
			if werr := write(samples); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// Stop asks ffmpeg to finish: it flushes the encoder and closes the container.
// Calling Stop again, or after Cancel or end of stream, does nothing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.state != captureRunning {
		err := c.stopErr
		c.mu.Unlock()
		return err
	}
	c.state = captureStopped
	c.mu.Unlock()

	select {
	case <-c.exited:
		return nil
	default:
	}

	// "q" on stdin is ffmpeg's interactive quit; it finalizes outputs.
	io.WriteString(c.stdin, "q\n")
	c.stdin.Close()

	var err error
	select {
	case <-c.exited:
	case <-time.After(c.stopTimeout):
		c.cmd.Process.Kill()
		<-c.exited
		err = fmt.Errorf("ffmpeg did not finalize %s within %s", c.path, c.stopTimeout)
	}

	c.mu.Lock()
	c.stopErr = err
	c.mu.Unlock()
	return err
}

// Cancel kills ffmpeg and deletes the partial output. No-op once stopped.
func (c *Capture) Cancel() error {
	c.mu.Lock()
	if c.state != captureRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = captureCancelled
	c.mu.Unlock()

	select {
	case <-c.exited:
	default:
		c.stdin.Close()
		if err := c.cmd.Process.Kill(); err != nil {
			c.log.Debugf("Killing ffmpeg: %v", err)
		}
		<-c.exited
	}

	if err := utils.DeleteFile(c.path); err != nil {
		c.log.Warnf("Removing cancelled recording %s: %v", c.path, err)
	}
	return nil
}
