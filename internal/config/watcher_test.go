package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GabrielNunesIT/heartlog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  interval: \"5\"\n"), 0644))

	w := NewConfigWatcher(path, testutil.NewTestLogger(), WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  interval: \"9\"\n"), 0644))

	select {
	case cfg := <-w.Changes():
		assert.Equal(t, "9", cfg.Heartbeat.Interval)
		assert.Same(t, cfg, w.LastConfig())
		assert.NoError(t, w.LastError())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestConfigWatcher_InvalidReloadKeepsLastConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  elapsed: round\n"), 0644))

	w := NewConfigWatcher(path, testutil.NewTestLogger())
	w.reload()
	first := w.LastConfig()
	require.NotNil(t, first)
	<-w.Changes()

	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  elapsed: sideways\n"), 0644))
	w.reload()

	assert.Error(t, w.LastError())
	assert.Same(t, first, w.LastConfig())
	select {
	case <-w.Changes():
		t.Fatal("invalid config must not be published")
	default:
	}
}

func TestConfigWatcher_KeepsNewestPendingChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartlog.yaml")
	w := NewConfigWatcher(path, testutil.NewTestLogger())

	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  interval: \"1\"\n"), 0644))
	w.reload()
	require.NoError(t, os.WriteFile(path, []byte("heartbeat:\n  interval: \"2\"\n"), 0644))
	w.reload()

	cfg := <-w.Changes()
	assert.Equal(t, "2", cfg.Heartbeat.Interval)
}
