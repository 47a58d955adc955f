package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modgraph/config"
)

func TestNew_RequiresCallback(t *testing.T) {
	_, err := New("app.yaml", nil)
	require.ErrorIs(t, err, ErrNoCallback)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: one\n"), 0o600))

	var mu sync.Mutex
	var seen []string
	w, err := New(path, func(_ context.Context, root *config.Node) error {
		addr, err := root.Lookup("server.addr")
		if err != nil || addr == nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, addr.Value)
		return nil
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Writes before the watch is registered are lost, so keep rewriting
	// until one is observed.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("server:\n  addr: two\n"), 0o600)
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "two", seen[len(seen)-1])
	assert.GreaterOrEqual(t, w.Reloads(), 1)
}

func TestWatcher_IgnoresOtherFilesAndBadDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": 1}`), 0o600))

	var mu sync.Mutex
	calls := 0
	w, err := New(path, func(context.Context, *config.Node) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, calls)
	mu.Unlock()
	assert.Zero(t, w.Reloads())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "app.yaml"), func(context.Context, *config.Node) error { return nil })
	require.NoError(t, err)
	require.Error(t, w.Run(context.Background()))
}
