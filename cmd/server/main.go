package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/mousai/artwork"
	"github.com/himanishpuri/mousai/pkg/mousai/config"
)

var (
	port           int
	allowedOrigins string
	flags          *config.Flags
)

func init() {
	flags = config.BindFlags(flag.CommandLine)
	flag.IntVar(&port, "port", 0, "HTTP server port (default from config, 8080)")
	flag.StringVar(&allowedOrigins, "origins", "", "Comma-separated list of allowed CORS origins (use * for all)")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flags.Apply(cfg)
	if port != 0 {
		cfg.Server.Port = port
	}
	if allowedOrigins != "" {
		cfg.Server.AllowedOrigins = parseOrigins(allowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	settings, err := mousai.NewSQLiteSettings(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open settings: %v", err)
	}
	defer settings.Close()
	stored, err := settings.ListenDuration()
	if err != nil {
		log.Warnf("Reading stored listen duration: %v", err)
	}
	cfg.UseStoredListenDuration(stored, flags)

	view := newWebView(log.With("uploads"))
	opts := append(cfg.ControllerOptions(log),
		mousai.WithArtwork(artwork.NewStore(cfg.CacheDir)),
		mousai.WithStatusView(view),
		mousai.WithNoticeView(view),
	)
	ctrl, err := mousai.NewController(cfg.Recognizer(log.With("audd")), cfg.Settings(settings), opts...)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		ctrl.Run(ctx)
	}()

	server := NewServer(ctrl, view, &ServerConfig{
		Port:           cfg.Server.Port,
		DBPath:         cfg.DBPath,
		UploadDir:      filepath.Join(cfg.TempDir(), "uploads"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
	}
	stop()
	<-loopDone
	log.Infof("Server stopped")
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	origins := strings.Split(s, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}
