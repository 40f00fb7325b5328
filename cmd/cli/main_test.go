package main

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
)

func quietLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	return logger.New(cfg)
}

func useTempStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "mousai.sqlite3")
	t.Setenv("MOUSAI_DB_PATH", db)
	t.Setenv("MOUSAI_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("MOUSAI_CONFIG", "")
	t.Setenv("MOUSAI_TOKEN", "")
	t.Setenv("MOUSAI_LISTEN_SECONDS", "")
	return db
}

func TestRunUsageErrors(t *testing.T) {
	useTempStore(t)
	log := quietLogger()

	for _, args := range [][]string{
		nil,
		{"dance"},
		{"identify"},
		{"history", "search"},
		{"history", "shuffle"},
		{"token", "rotate"},
		{"duration", "set", "soon"},
	} {
		if code := run(log, args); code != 1 {
			t.Errorf("run(%q) = %d, want 1", args, code)
		}
	}
}

func TestRunFailureStillClosesStore(t *testing.T) {
	db := useTempStore(t)
	log := quietLogger()

	// fails after the controller and the store are open
	if code := run(log, []string{"history", "remove"}); code != 1 {
		t.Fatalf("history remove without link = %d, want 1", code)
	}
	if code := run(log, []string{"duration", "set", "7s"}); code != 0 {
		t.Fatalf("duration set = %d, want 0", code)
	}

	settings, err := mousai.NewSQLiteSettings(db)
	if err != nil {
		t.Fatalf("reopening settings: %v", err)
	}
	defer settings.Close()
	if d, _ := settings.ListenDuration(); d != 7*time.Second {
		t.Errorf("stored duration = %v, want 7s", d)
	}
}
