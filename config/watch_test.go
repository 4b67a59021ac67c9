package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sharerelay/util"
)

func TestWatch_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharerelay.yaml")
	writeFile(t, path, "log:\n  verbose: 0\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, util.NopLogger(), func(c *Config) { changes <- c })
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "log:\n  verbose: 2\n")

	select {
	case c := <-changes:
		if c.Log.Verbose != 2 {
			t.Errorf("Verbose = %d, want 2", c.Log.Verbose)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatch_BadPath(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent-dir/x/config.yaml", util.NopLogger(), func(*Config) {})
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
