package mousai

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
)

func quietLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	return logger.New(cfg)
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type memSettings struct {
	mu    sync.Mutex
	token string
	songs []Song
	saves int
	err   error
}

func (s *memSettings) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *memSettings) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return s.err
}

func (s *memSettings) History() ([]Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Song(nil), s.songs...), s.err
}

func (s *memSettings) SetHistory(songs []Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.songs = append([]Song(nil), songs...)
	return nil
}

func (s *memSettings) stored() []Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Song(nil), s.songs...)
}

type fakeCapture struct {
	path   string
	levels chan float64
	done   chan error
	once   sync.Once

	stops   atomic.Int32
	cancels atomic.Int32
}

func (c *fakeCapture) Path() string           { return c.path }
func (c *fakeCapture) Levels() <-chan float64 { return c.levels }
func (c *fakeCapture) Done() <-chan error     { return c.done }

func (c *fakeCapture) end(err error) {
	c.once.Do(func() {
		close(c.levels)
		c.done <- err
	})
}

func (c *fakeCapture) Stop() error {
	c.stops.Add(1)
	c.end(nil)
	return nil
}

func (c *fakeCapture) Cancel() error {
	c.cancels.Add(1)
	c.end(nil)
	os.Remove(c.path)
	return nil
}

// fakeRecorder hands out captures that replay levels. With endAfterLevels
// the stream ends by itself once the levels are delivered.
type fakeRecorder struct {
	mu             sync.Mutex
	levels         []float64
	endAfterLevels bool
	endErr         error
	startErr       error
	captures       []*fakeCapture
	devices        []string
}

func (r *fakeRecorder) Start(ctx context.Context, device, outputPath string) (Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	if err := os.WriteFile(outputPath, []byte("OggS"), 0o644); err != nil {
		return nil, err
	}

	c := &fakeCapture{
		path:   outputPath,
		levels: make(chan float64, len(r.levels)+1),
		done:   make(chan error, 1),
	}
	for _, l := range r.levels {
		c.levels <- l
	}
	if r.endAfterLevels {
		c.end(r.endErr)
	}
	r.captures = append(r.captures, c)
	r.devices = append(r.devices, device)
	return c, nil
}

func (r *fakeRecorder) Extension() string { return "ogg" }

func (r *fakeRecorder) last() *fakeCapture {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.captures) == 0 {
		return nil
	}
	return r.captures[len(r.captures)-1]
}

type fakeResolver struct {
	device string
	err    error
}

func (r fakeResolver) Resolve(context.Context) (string, error) {
	return r.device, r.err
}

type fakeRecognizer struct {
	result  RecognitionResult
	release chan struct{} // when set, Identify blocks until closed

	calls      atomic.Int32
	mu         sync.Mutex
	paths      []string
	tokens     []string
	fileExists []bool
}

func (r *fakeRecognizer) Identify(ctx context.Context, path, token string) RecognitionResult {
	r.calls.Add(1)
	_, err := os.Stat(path)
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.tokens = append(r.tokens, token)
	r.fileExists = append(r.fileExists, err == nil)
	r.mu.Unlock()

	if r.release != nil {
		<-r.release
	}
	return r.result
}

type fakeArtwork struct {
	fetched chan Song
}

func (a *fakeArtwork) Fetch(ctx context.Context, song Song) (string, error) {
	a.fetched <- song
	return "/cache/" + song.Title + ".jpg", nil
}

// views records everything the controller shows.
type views struct {
	mu        sync.Mutex
	states    []State
	notices   []Notice
	histories [][]Song
	levels    []float64
}

func (v *views) ShowState(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, s)
}

func (v *views) ShowLevel(db float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.levels = append(v.levels, db)
}

func (v *views) ShowNotice(n Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *views) ShowHistory(songs []Song) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.histories = append(v.histories, songs)
}

func (v *views) noticeTitles() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, n := range v.notices {
		out = append(out, n.Title)
	}
	return out
}

func (v *views) lastNotice() (Notice, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.notices) == 0 {
		return Notice{}, false
	}
	return v.notices[len(v.notices)-1], true
}

func (v *views) lastHistory() []Song {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.histories) == 0 {
		return nil
	}
	return v.histories[len(v.histories)-1]
}

func (v *views) seenStates() []State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]State(nil), v.states...)
}

// slowArtwork takes delay to download unless its context ends first.
type slowArtwork struct {
	delay     time.Duration
	completed atomic.Bool
	cancelled atomic.Bool
}

func (a *slowArtwork) Fetch(ctx context.Context, song Song) (string, error) {
	select {
	case <-time.After(a.delay):
		a.completed.Store(true)
		return "/cache/" + song.Title + ".jpg", nil
	case <-ctx.Done():
		a.cancelled.Store(true)
		return "", ctx.Err()
	}
}
