package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appConfig = `
status:
  listen: 127.0.0.1:0
scheduler:
  timezone: UTC
  jobs:
    heartbeat:
      spec: "@every 1h"
      message: hello
`

// syncBuffer is a bytes.Buffer safe for log writers running in other
// goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "modgraph builds a tree of modules")
	for _, sub := range []string{"run", "inspect", "phases"} {
		assert.Contains(t, out, sub)
	}
}

func TestPhasesCommand(t *testing.T) {
	out, err := execute(t, "phases")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "NOT_STARTED", lines[0])
	assert.Equal(t, "EXECUTE", lines[8])
}

func TestInspectCommand(t *testing.T) {
	path := writeConfig(t, "app.yaml", appConfig)

	t.Run("whole document", func(t *testing.T) {
		out, err := execute(t, "inspect", path)
		require.NoError(t, err)
		assert.Contains(t, out, "<root> {}")
		assert.Contains(t, out, `spec = "@every 1h"`)
	})

	t.Run("key path", func(t *testing.T) {
		out, err := execute(t, "inspect", path, "--path", "scheduler.jobs.heartbeat.message")
		require.NoError(t, err)
		assert.Equal(t, "message = \"hello\"\n", out)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := execute(t, "inspect", path, "--path", "scheduler.nope")
		require.ErrorContains(t, err, "no value at")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "inspect", filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := execute(t, "run")
	require.ErrorContains(t, err, "config")
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(new(bytes.Buffer), "loud", "text")
	require.Error(t, err)
	_, err = newLogger(new(bytes.Buffer), "info", "xml")
	require.Error(t, err)
	l, err := newLogger(new(bytes.Buffer), "debug", "json")
	require.NoError(t, err)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestRun(t *testing.T) {
	path := writeConfig(t, "app.yaml", appConfig)
	buf := new(syncBuffer)
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM

	opts := &runOptions{configPath: path, name: "run-test", hookTimeout: 5 * time.Second}
	require.NoError(t, run(context.Background(), opts, logger, sigs))

	out := buf.String()
	assert.Contains(t, out, "Application built")
	assert.Contains(t, out, "Status server listening")
	assert.Contains(t, out, "Received signal, shutting down")
	assert.Contains(t, out, "Scheduler stopped")
}

func TestRunWithWatch(t *testing.T) {
	path := writeConfig(t, "app.yaml", appConfig)
	buf := new(syncBuffer)
	logger := slog.New(slog.NewTextHandler(buf, nil))

	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGINT

	opts := &runOptions{configPath: path, name: "run-test", watch: true}
	require.NoError(t, run(context.Background(), opts, logger, sigs))
	assert.Contains(t, buf.String(), "Watching configuration")
}

func TestRunBuildFailure(t *testing.T) {
	path := writeConfig(t, "app.yaml", "scheduler:\n  timezone: Nowhere/Special\n")
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
	err := run(context.Background(), &runOptions{configPath: path}, logger, make(chan os.Signal))
	require.Error(t, err)
}
