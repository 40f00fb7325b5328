package mousai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pcm "github.com/himanishpuri/mousai/internal/audio"
	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai/audio"
	"github.com/himanishpuri/mousai/pkg/utils"
)

// Controller runs recording sessions: Idle -> Recording -> Processing -> Idle,
// or Recording -> Idle on cancel. All state, the history and every view call
// live on the goroutine running Run; other goroutines post closures to it.
type Controller struct {
	cfg        *Config
	log        Logger
	recognizer Recognizer
	settings   Settings
	recorder   Recorder
	resolver   DeviceResolver
	history    *History

	events  chan func()
	quit    chan struct{}
	running atomic.Bool
	state   atomic.Int32
	fetches sync.WaitGroup

	// owned by the loop
	ctx        context.Context
	session    *session
	processing *session
}

// session is one recording, or one file handed to IdentifyFile.
type session struct {
	id      string
	device  string
	path    string
	token   string
	capture Capture
	timer   *Timer
	started time.Time
	owned   bool // path was created by us and may be deleted

	levels  int
	last    float64
	highest float64
}

// Status is a snapshot of the controller for front ends.
type Status struct {
	State       State         `json:"state"`
	Device      string        `json:"device,omitempty"`
	Remaining   time.Duration `json:"remaining"`
	Level       float64       `json:"level"`
	Peak        float64       `json:"peak"`
	HistorySize int           `json:"history_size"`
}

// NewController builds a controller and loads the persisted history.
// Without WithRecorder it records with ffmpeg; without WithResolver it asks
// pactl for the default device (or uses WithDevice).
func NewController(recognizer Recognizer, settings Settings, opts ...Option) (*Controller, error) {
	if recognizer == nil {
		return nil, errors.New("recognizer is required")
	}
	if settings == nil {
		return nil, errors.New("settings are required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("controller")
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NewFFmpegRecorder(nil)
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = &audio.PactlResolver{Source: cfg.Source, Device: cfg.Device}
	}

	c := &Controller{
		cfg:        cfg,
		log:        cfg.Logger,
		recognizer: recognizer,
		settings:   settings,
		recorder:   recorder,
		resolver:   resolver,
		history:    NewHistory(settings),
		events:     make(chan func(), 64),
		quit:       make(chan struct{}),
		ctx:        context.Background(),
	}

	if songs, err := c.history.Load(); err != nil {
		c.log.Warnf("Loading history: %v", err)
	} else {
		c.log.Debugf("Loaded %d history entries", len(songs))
	}
	return c, nil
}

// Run processes events until ctx ends. On the way out it cancels an active
// recording, saves the history and gives pending artwork downloads up to
// Config.ArtworkTimeout to finish.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	c.ctx = ctx

	c.refreshHistory()
	c.setState(StateIdle)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			close(c.quit)
			c.waitArtwork()
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.quit:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// State is safe to call from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start begins a recording. It fails with ErrBusy unless Idle, ErrNoToken
// without an API token and ErrDeviceUnavailable without an input device.
func (c *Controller) Start() error {
	return c.call(c.start)
}

// Cancel aborts the current recording. The recognizer is not called.
func (c *Controller) Cancel() error {
	return c.call(c.cancel)
}

// IdentifyFile recognizes an existing audio file as if it had just been recorded.
// The file is never deleted.
func (c *Controller) IdentifyFile(path string) error {
	return c.call(func() error { return c.identifyFile(path) })
}

func (c *Controller) History() ([]Song, error) {
	var songs []Song
	err := c.call(func() error {
		songs = c.history.Songs()
		return nil
	})
	return songs, err
}

func (c *Controller) SearchHistory(query string) ([]Song, error) {
	var songs []Song
	err := c.call(func() error {
		songs = c.history.Search(query)
		return nil
	})
	return songs, err
}

func (c *Controller) ClearHistory() error {
	return c.call(func() error {
		c.history.Clear()
		err := c.saveHistory()
		c.refreshHistory()
		return err
	})
}

func (c *Controller) RemoveSong(link string) error {
	return c.call(func() error {
		if !c.history.Remove(link) {
			return ErrSongNotFound
		}
		err := c.saveHistory()
		c.refreshHistory()
		return err
	})
}

func (c *Controller) SetToken(token string) error {
	return c.call(func() error {
		return c.settings.SetToken(strings.TrimSpace(token))
	})
}

func (c *Controller) Status() (Status, error) {
	var st Status
	err := c.call(func() error {
		st = Status{State: c.State(), HistorySize: c.history.Len()}
		if s := c.session; s != nil {
			st.Device = s.device
			st.Remaining = s.timer.Remaining()
			st.Level = s.last
			st.Peak = s.highest
		}
		return nil
	})
	return st, err
}

func (c *Controller) start() error {
	if c.State() != StateIdle {
		return ErrBusy
	}

	token, err := c.token()
	if err != nil {
		return err
	}

	device, err := c.resolver.Resolve(c.ctx)
	if err != nil {
		c.log.Errorf("Resolving input device: %v", err)
		c.notify(NoticeError, "No audio input", "No audio input device is available.")
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return err
	}

	path := filepath.Join(c.cfg.TempDir, utils.RecordingFileName(c.recorder.Extension()))
	capture, err := c.recorder.Start(c.ctx, device, path)
	if err != nil {
		c.log.Errorf("Starting capture on %s: %v", device, err)
		c.notify(NoticeError, "Recording failed", err.Error())
		return err
	}

	s := &session{
		id:      utils.NewID(),
		device:  device,
		path:    path,
		token:   token,
		capture: capture,
		timer:   NewTimer(c.cfg.TickInterval),
		started: time.Now(),
		owned:   true,
		last:    pcm.MinLevel,
		highest: pcm.MinLevel,
	}
	c.session = s
	c.setState(StateRecording)

	go c.watchCapture(s)
	if err := s.timer.Start(c.cfg.ListenDuration, func() {
		c.post(func() { c.finishRecording(s) })
	}); err != nil {
		c.abort(s)
		return err
	}

	c.log.Infof("Listening on %s for %s", device, c.cfg.ListenDuration)
	return nil
}

func (c *Controller) token() (string, error) {
	token, err := c.settings.Token()
	if err != nil {
		c.log.Errorf("Reading API token: %v", err)
		c.notify(NoticeError, "Settings unavailable", err.Error())
		return "", fmt.Errorf("reading token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		c.notify(NoticeError, "No API token", "Set an AudD API token to recognize songs.")
		return "", ErrNoToken
	}
	return token, nil
}

func (c *Controller) cancel() error {
	if c.State() != StateRecording || c.session == nil {
		return ErrNotRecording
	}
	c.abort(c.session)
	c.log.Infof("Recording cancelled")
	return nil
}

// abort drops the current recording without recognizing it.
func (c *Controller) abort(s *session) {
	s.timer.Cancel()
	if err := s.capture.Cancel(); err != nil {
		c.log.Warnf("Cancelling capture: %v", err)
	}
	c.session = nil
	c.setState(StateIdle)
}

func (c *Controller) identifyFile(path string) error {
	if c.State() != StateIdle {
		return ErrBusy
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	token, err := c.token()
	if err != nil {
		return err
	}

	s := &session{id: utils.NewID(), path: path, token: token, started: time.Now()}
	c.setState(StateProcessing)
	c.recognize(s)
	return nil
}

// watchCapture forwards level readings and the end of stream to the loop.
func (c *Controller) watchCapture(s *session) {
	for level := range s.capture.Levels() {
		db := level
		if !c.post(func() { c.onLevel(s, db) }) {
			return
		}
	}
	err := <-s.capture.Done()
	c.post(func() { c.onCaptureDone(s, err) })
}

func (c *Controller) onLevel(s *session, db float64) {
	if c.session != s {
		return
	}
	s.levels++
	s.last = db
	if db > s.highest {
		s.highest = db
	}
	if c.cfg.StatusView != nil {
		c.cfg.StatusView.ShowLevel(db)
	}
}

func (c *Controller) onCaptureDone(s *session, err error) {
	if c.session != s {
		return
	}
	if err != nil {
		c.log.Errorf("Recording from %s failed: %v", s.device, err)
		c.abort(s)
		c.notify(NoticeError, "Recording failed", err.Error())
		return
	}
	c.log.Debugf("Capture %s ended before the timer", s.id)
	c.finishRecording(s)
}

// finishRecording moves a recording to Processing.
func (c *Controller) finishRecording(s *session) {
	if c.session != s {
		return
	}
	s.timer.Cancel()
	c.session = nil
	c.setState(StateProcessing)

	if err := s.capture.Stop(); err != nil {
		c.log.Errorf("Finalizing %s: %v", s.path, err)
		c.notify(NoticeError, "Recording failed", err.Error())
		c.discard(s)
		c.setState(StateIdle)
		return
	}

	if c.silent(s) {
		c.log.Infof("Peak %.1f dBFS stayed under %.1f dBFS, skipping recognition", s.highest, c.cfg.SilenceThreshold)
		c.notify(NoticeError, "No audio detected", "Nothing was heard. Check that the input is not muted.")
		c.discard(s)
		c.setState(StateIdle)
		return
	}

	c.log.Debugf("Recorded %s in %s", s.path, time.Since(s.started).Round(time.Millisecond))
	c.recognize(s)
}

// silent reports whether every level of the recording stayed under the
// threshold. A recording with no readings is not considered silent.
func (c *Controller) silent(s *session) bool {
	return c.cfg.SkipSilent && s.levels > 0 && s.highest < c.cfg.SilenceThreshold
}

// recognize runs the recognizer on a worker; the result comes back to the loop.
func (c *Controller) recognize(s *session) {
	c.processing = s
	ctx := c.ctx
	go func() {
		result := c.identify(ctx, s)
		if !c.post(func() { c.onResult(s, result) }) {
			c.discard(s)
		}
	}()
}

func (c *Controller) identify(ctx context.Context, s *session) RecognitionResult {
	if c.cfg.Prober != nil {
		info, err := c.cfg.Prober.Probe(ctx, s.path)
		switch {
		case errors.Is(err, audio.ErrEmptyClip):
			return FailedResult("The recording is empty.", ErrorOther)
		case err != nil:
			c.log.Warnf("Probing %s: %v", s.path, err)
		default:
			c.log.Debugf("Clip %s: %s %s, %s", s.id, info.Container, info.Codec, info.Duration)
		}
	}
	return c.recognizer.Identify(ctx, s.path, s.token)
}

func (c *Controller) onResult(s *session, result RecognitionResult) {
	if c.processing != s {
		return
	}
	c.processing = nil
	c.discard(s)

	switch {
	case result.Kind == Matched && result.Song != nil:
		song := *result.Song
		if song.RecognizedAt.IsZero() {
			song.RecognizedAt = time.Now()
		}
		c.log.Infof("Recognized %s", song)
		c.history.InsertFront(song)
		c.saveHistory()
		c.fetchArtwork(song)
		c.setState(StateIdle)
		c.refreshHistory()
		c.notify(NoticeInfo, "Song recognized", song.String())
	case result.Kind == NoMatch:
		c.log.Infof("No match for %s", s.id)
		c.setState(StateIdle)
		c.notify(NoticeWarning, "No match", "The song was not recognized.")
	default:
		c.log.Warnf("Recognition failed (%s): %s", result.ErrorKind, result.Reason)
		c.setState(StateIdle)
		c.notify(NoticeError, "Recognition failed", result.Reason)
	}
}

func (c *Controller) fetchArtwork(song Song) {
	if c.cfg.Artwork == nil || song.ArtworkURL == "" {
		return
	}
	// downloads outlive the loop so a result printed right before exit
	// still gets its cover cached
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.ArtworkTimeout)
	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		defer cancel()
		path, err := c.cfg.Artwork.Fetch(ctx, song)
		c.post(func() {
			if err != nil {
				c.log.Warnf("Fetching artwork for %s: %v", song, err)
				return
			}
			c.log.Debugf("Artwork for %s cached at %s", song, path)
			c.refreshHistory()
		})
	}()
}

func (c *Controller) waitArtwork() {
	done := make(chan struct{})
	go func() {
		c.fetches.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ArtworkTimeout):
		c.log.Warnf("Artwork downloads still running at shutdown, giving up")
	}
}

// discard deletes a finished recording unless it is kept or not ours.
func (c *Controller) discard(s *session) {
	if !s.owned || c.cfg.KeepRecordings {
		return
	}
	if err := utils.DeleteFile(s.path); err != nil {
		c.log.Warnf("Removing %s: %v", s.path, err)
	}
}

func (c *Controller) shutdown() {
	if s := c.session; s != nil {
		c.log.Infof("Shutting down, cancelling recording %s", s.id)
		c.abort(s)
	}
	if err := c.history.Save(); err != nil {
		c.log.Errorf("Saving history: %v", err)
	}
}

func (c *Controller) saveHistory() error {
	if err := c.history.Save(); err != nil {
		c.log.Errorf("Saving history: %v", err)
		c.notify(NoticeWarning, "History not saved", err.Error())
		return err
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if c.cfg.StatusView != nil {
		c.cfg.StatusView.ShowState(s)
	}
}

func (c *Controller) refreshHistory() {
	if c.cfg.HistoryView != nil {
		c.cfg.HistoryView.ShowHistory(c.history.Songs())
	}
}

func (c *Controller) notify(kind NoticeKind, title, message string) {
	if c.cfg.NoticeView != nil {
		c.cfg.NoticeView.ShowNotice(Notice{Kind: kind, Title: title, Message: message})
	}
}
