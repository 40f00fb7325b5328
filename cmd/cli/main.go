package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/mousai/artwork"
	"github.com/himanishpuri/mousai/pkg/mousai/config"
)

var flags *config.Flags

func init() {
	// Global flags that can be used with any command
	flags = config.BindFlags(flag.CommandLine)
}

// app bundles what every command needs.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	settings *mousai.SQLiteSettings
}

func loadApp() (*app, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	settings, err := mousai.NewSQLiteSettings(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}
	stored, err := settings.ListenDuration()
	if err != nil {
		log.Warnf("Reading stored listen duration: %v", err)
	}
	cfg.UseStoredListenDuration(stored, flags)
	return &app{cfg: cfg, log: log, settings: settings}, nil
}

func (a *app) Close() {
	if err := a.settings.Close(); err != nil {
		a.log.Warnf("Closing settings: %v", err)
	}
}

// newController builds a controller reporting to view and starts its loop.
// The returned stop function shuts the loop down and waits for it.
func (a *app) newController(view *terminalView) (*mousai.Controller, func(), error) {
	opts := append(a.cfg.ControllerOptions(a.log),
		mousai.WithArtwork(artwork.NewStore(a.cfg.CacheDir)),
		mousai.WithStatusView(view),
		mousai.WithNoticeView(view),
	)
	ctrl, err := mousai.NewController(a.cfg.Recognizer(a.log.With("audd")), a.cfg.Settings(a.settings), opts...)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()
	return ctrl, func() {
		cancel()
		<-done
	}, nil
}

// fail reports err and returns the exit status for it.
func fail(log *logger.Logger, what string, err error) int {
	fmt.Printf("❌ %s: %v\n", what, err)
	log.Errorf("%s: %v", what, err)
	return 1
}

func main() {
	log := logger.GetLogger()

	flag.Usage = printUsage
	flag.Parse()

	printBanner()
	code := run(log, flag.Args())
	os.Exit(code)
}

// run dispatches a command and returns the process exit status. Commands
// return instead of exiting so their deferred cleanup always runs.
func run(log *logger.Logger, args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	command := args[0]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "listen":
		return handleListen()
	case "identify":
		return handleIdentify(args[1:])
	case "history":
		return handleHistory(args[1:])
	case "token":
		return handleToken(args[1:])
	case "duration":
		return handleDuration(args[1:])
	case "devices":
		return handleDevices()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		return 1
	}
}

func printBanner() {
	banner := `
 __  __                       _
|  \/  | ___  _   _ ___  __ _(_)
| |\/| |/ _ \| | | / __|/ _' | |
| |  | | (_) | |_| \__ \ (_| | |
|_|  |_|\___/ \__,_|___/\__,_|_|

      Identify the song playing
`
	fmt.Println(banner)
}

func handleListen() int {
	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	view := newTerminalView(os.Stdout)
	ctrl, stop, err := a.newController(view)
	if err != nil {
		return fail(a.log, "Failed to create controller", err)
	}
	defer stop()

	sigs, release := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer release()

	if err := ctrl.Start(); err != nil {
		explainStartError(err)
		return 1
	}
	fmt.Printf("🎙️  Listening for %s... press Ctrl-C to cancel\n", a.cfg.Recording.ListenDuration)

	select {
	case <-view.finished:
	case <-sigs.Done():
		if err := ctrl.Cancel(); err == nil {
			fmt.Println("\n🛑 Cancelled")
			return 0
		}
		<-view.finished
	}
	return printResult(ctrl, view)
}

func handleIdentify(args []string) int {
	if len(args) < 1 {
		fmt.Println("Usage: mousai identify <audio_file>")
		return 1
	}
	path := args[0]

	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	view := newTerminalView(os.Stdout)
	ctrl, stop, err := a.newController(view)
	if err != nil {
		return fail(a.log, "Failed to create controller", err)
	}
	defer stop()

	fmt.Printf("🔍 Sending %s to AudD...\n", path)
	if err := ctrl.IdentifyFile(path); err != nil {
		explainStartError(err)
		return 1
	}
	<-view.finished
	return printResult(ctrl, view)
}

// printResult waits for the notice that follows the return to Idle and
// prints the newest history entry on a match.
func printResult(ctrl *mousai.Controller, view *terminalView) int {
	// the notice is shown in the same loop turn as the Idle state, so a
	// round trip through the loop guarantees it has been recorded
	ctrl.Status()

	n, ok := view.lastNotice()
	if !ok {
		return 0
	}
	switch n.Kind {
	case mousai.NoticeInfo:
		songs, err := ctrl.History()
		if err != nil || len(songs) == 0 {
			fmt.Printf("\n✅ %s\n", n.Message)
			return 0
		}
		fmt.Println("\n✅ Song recognized!")
		printSong(songs[0])
	case mousai.NoticeWarning:
		fmt.Printf("\n🤷 %s\n", n.Message)
	default:
		fmt.Printf("\n❌ %s: %s\n", n.Title, n.Message)
		return 1
	}
	return 0
}

func explainStartError(err error) {
	switch {
	case errors.Is(err, mousai.ErrNoToken):
		fmt.Println("❌ No AudD API token. Run: mousai token set <token>")
	case errors.Is(err, mousai.ErrDeviceUnavailable):
		fmt.Printf("❌ No audio input device: %v\n", err)
		fmt.Println("   Run 'mousai devices' to see what is available")
	default:
		fmt.Printf("❌ %v\n", err)
	}
}

func printSong(s mousai.Song) {
	fmt.Printf("   Title:   %s\n", s.Title)
	fmt.Printf("   Artist:  %s\n", s.Artist)
	fmt.Printf("   Link:    %s\n", s.SongLink)
	if s.PreviewURL != "" {
		fmt.Printf("   Preview: %s\n", s.PreviewURL)
	}
	for _, l := range s.ExternalLinks {
		fmt.Printf("   %-8s %s\n", l.Provider+":", l.URL)
	}
	if !s.RecognizedAt.IsZero() {
		fmt.Printf("   Heard:   %s\n", humanize.Time(s.RecognizedAt))
	}
}

func handleHistory(args []string) int {
	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	ctrl, stop, err := a.newController(newTerminalView(os.Stdout))
	if err != nil {
		return fail(a.log, "Failed to create controller", err)
	}
	defer stop()

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		songs, err := ctrl.History()
		if err != nil {
			return fail(a.log, "Failed to read history", err)
		}
		printHistory(songs, "No songs recognized yet")
	case "search":
		if len(args) < 2 {
			fmt.Println("Usage: mousai history search <query>")
			return 1
		}
		query := strings.Join(args[1:], " ")
		songs, err := ctrl.SearchHistory(query)
		if err != nil {
			return fail(a.log, "Search failed", err)
		}
		printHistory(songs, fmt.Sprintf("Nothing matches %q", query))
	case "remove":
		if len(args) < 2 {
			fmt.Println("Usage: mousai history remove <song_link>")
			return 1
		}
		if err := ctrl.RemoveSong(args[1]); err != nil {
			return fail(a.log, "Failed to remove song", err)
		}
		fmt.Println("✅ Removed from history")
	case "clear":
		if err := ctrl.ClearHistory(); err != nil {
			return fail(a.log, "Failed to clear history", err)
		}
		fmt.Println("✅ History cleared")
	default:
		fmt.Printf("Unknown history command: %s\n", sub)
		return 1
	}
	return 0
}

func printHistory(songs []mousai.Song, empty string) {
	if len(songs) == 0 {
		fmt.Printf("📭 %s\n", empty)
		return
	}
	fmt.Printf("📚 %s:\n\n", english.Plural(len(songs), "song", "songs"))
	for i, s := range songs {
		heard := ""
		if !s.RecognizedAt.IsZero() {
			heard = " · " + humanize.Time(s.RecognizedAt)
		}
		fmt.Printf("%d. \"%s\" by %s%s\n", i+1, s.Title, s.Artist, heard)
		fmt.Printf("   %s\n\n", s.SongLink)
	}
}

func handleToken(args []string) int {
	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "set":
		if len(args) < 2 {
			fmt.Println("Usage: mousai token set <token>")
			return 1
		}
		if err := a.settings.SetToken(strings.TrimSpace(args[1])); err != nil {
			return fail(a.log, "Failed to save token", err)
		}
		fmt.Println("✅ Token saved")
	case "clear":
		if err := a.settings.SetToken(""); err != nil {
			return fail(a.log, "Failed to clear token", err)
		}
		fmt.Println("✅ Token removed")
	case "show":
		token, err := a.cfg.Settings(a.settings).Token()
		if err != nil {
			return fail(a.log, "Failed to read token", err)
		}
		if token == "" {
			fmt.Println("📭 No token set")
			return 0
		}
		fmt.Printf("🔑 %s\n", maskToken(token))
	default:
		fmt.Printf("Unknown token command: %s\n", sub)
		return 1
	}
	return 0
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func handleDuration(args []string) int {
	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	if len(args) == 0 || args[0] == "show" {
		fmt.Printf("⏱️  Listening for %s\n", a.cfg.Recording.ListenDuration)
		return 0
	}
	if args[0] != "set" || len(args) < 2 {
		fmt.Println("Usage: mousai duration [show | set <duration>]")
		return 1
	}

	d, err := time.ParseDuration(args[1])
	if err != nil || d <= 0 {
		fmt.Printf("❌ Invalid duration %q (examples: 5s, 8s, 1m)\n", args[1])
		return 1
	}
	if err := a.settings.SetListenDuration(d); err != nil {
		return fail(a.log, "Failed to save duration", err)
	}
	fmt.Printf("✅ Listen duration set to %s\n", d)
	return 0
}

func handleDevices() int {
	a, err := loadApp()
	if err != nil {
		return fail(logger.GetLogger(), "Invalid configuration", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolver := a.cfg.Resolver()
	devices, err := resolver.List(ctx)
	if err != nil {
		return fail(a.log, "Failed to list devices", err)
	}
	current, _ := resolver.Resolve(ctx)

	if len(devices) == 0 {
		fmt.Println("📭 No capture devices found")
		return 0
	}
	fmt.Printf("🎧 %s:\n\n", english.Plural(len(devices), "device", "devices"))
	for _, d := range devices {
		marker := "  "
		if d.Name == current {
			marker = "▶ "
		}
		kind := "input"
		if d.Monitor {
			kind = "monitor"
		}
		fmt.Printf("%s%s (%s, %s)\n", marker, d.Name, kind, strings.ToLower(d.State))
	}
	return 0
}

func printUsage() {
	fmt.Println("Mousai - identify songs with AudD")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <path>     YAML config file (env: MOUSAI_CONFIG)")
	fmt.Println("  --db <path>         SQLite settings database (env: MOUSAI_DB_PATH)")
	fmt.Println("  --token <token>     AudD API token for this run (env: MOUSAI_TOKEN)")
	fmt.Println("  --duration <d>      How long to listen (default: 5s)")
	fmt.Println("  --source <src>      microphone or desktop (env: MOUSAI_SOURCE)")
	fmt.Println("  --device <name>     Capture device (env: MOUSAI_DEVICE)")
	fmt.Println("  --format <fmt>      ogg, mp3 or wav (default: ogg)")
	fmt.Println("  --mock              Use canned results instead of AudD")
	fmt.Println("\nUsage:")
	fmt.Println("  mousai [global-options] listen")
	fmt.Println("  mousai [global-options] identify <audio_file>")
	fmt.Println("  mousai [global-options] history [list | search <query> | remove <song_link> | clear]")
	fmt.Println("  mousai [global-options] token [show | set <token> | clear]")
	fmt.Println("  mousai [global-options] duration [show | set <duration>]")
	fmt.Println("  mousai [global-options] devices")
	fmt.Println("\nExamples:")
	fmt.Println("  # Listen to what the speakers are playing")
	fmt.Println("  mousai --source desktop listen")
	fmt.Println()
	fmt.Println("  # Identify a clip on disk")
	fmt.Println("  mousai identify clip.ogg")
}
