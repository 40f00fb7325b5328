package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrDeviceUnavailable is returned when no usable input device can be resolved.
var ErrDeviceUnavailable = errors.New("no audio input device available")

// Source selects what gets recorded.
type Source int

const (
	// SourceMicrophone records the default input device.
	SourceMicrophone Source = iota
	// SourceDesktop records the monitor of the default output device.
	SourceDesktop
)

func (s Source) String() string {
	switch s {
	case SourceMicrophone:
		return "microphone"
	case SourceDesktop:
		return "desktop"
	default:
		return "unknown"
	}
}

// ParseSource accepts "microphone"/"mic" and "desktop"/"speaker".
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "microphone", "mic":
		return SourceMicrophone, nil
	case "desktop", "speaker", "monitor":
		return SourceDesktop, nil
	default:
		return SourceMicrophone, fmt.Errorf("unknown audio source %q", s)
	}
}

// Device is one capture-capable PulseAudio/PipeWire source.
type Device struct {
	Name    string
	Driver  string
	State   string
	Monitor bool
}

// PactlResolver finds devices through the pactl command line tool.
type PactlResolver struct {
	Binary string
	Source Source
	// Device, when set, is returned as-is without querying the audio server.
	Device string
}

func (r *PactlResolver) binary() string {
	if r.Binary == "" {
		return "pactl"
	}
	return r.Binary
}

func (r *PactlResolver) run(ctx context.Context, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, r.binary(), args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return string(out), nil
}

// Resolve returns the device name ffmpeg should record from.
func (r *PactlResolver) Resolve(ctx context.Context) (string, error) {
	if name := strings.TrimSpace(r.Device); name != "" {
		return name, nil
	}

	sub, field := "get-default-source", "Default Source"
	if r.Source == SourceDesktop {
		sub, field = "get-default-sink", "Default Sink"
	}

	name := ""
	if out, err := r.run(ctx, sub); err == nil {
		name = strings.TrimSpace(out)
	}
	if name == "" {
		// Older pactl builds have no get-default-* subcommands.
		out, err := r.run(ctx, "info")
		if err != nil {
			return "", fmt.Errorf("%w: pactl info: %v", ErrDeviceUnavailable, err)
		}
		name = parseInfoField(out, field)
	}
	if name == "" {
		return "", fmt.Errorf("%w: no %s reported", ErrDeviceUnavailable, strings.ToLower(field))
	}

	if r.Source == SourceDesktop && !strings.HasSuffix(name, ".monitor") {
		name += ".monitor"
	}
	return name, nil
}

// List returns every source known to the audio server, monitors included.
func (r *PactlResolver) List(ctx context.Context) ([]Device, error) {
	out, err := r.run(ctx, "list", "short", "sources")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return parseShortSources(out), nil
}

func parseInfoField(out, field string) string {
	prefix := field + ":"
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// parseShortSources reads `pactl list short sources`: index, name, driver, spec, state.
func parseShortSources(out string) []Device {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
			continue
		}
		d := Device{Name: strings.TrimSpace(fields[1])}
		if len(fields) > 2 {
			d.Driver = strings.TrimSpace(fields[2])
		}
		if len(fields) > 4 {
			d.State = strings.TrimSpace(fields[4])
		}
		d.Monitor = strings.HasSuffix(d.Name, ".monitor")
		devices = append(devices, d)
	}
	return devices
}
