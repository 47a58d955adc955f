package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/feeders"
	"github.com/GoCodeAlone/modgraph/internal/testutil"
)

func newApp(t *testing.T) (*modgraph.Application, *testutil.Logger) {
	t.Helper()
	logger := testutil.NewLogger()
	app, err := modgraph.New(modgraph.WithLogger(logger), modgraph.WithName("scheduler-test"))
	require.NoError(t, err)
	require.NoError(t, Register(app))
	return app, logger
}

func heartbeat(t *testing.T, app *modgraph.Application) *Heartbeat {
	t.Helper()
	n, err := app.Node(ModuleName, "jobs", "heartbeat")
	require.NoError(t, err)
	h, ok := modgraph.Instance[Heartbeat](n)
	require.True(t, ok)
	return h
}

func TestHeartbeatFires(t *testing.T) {
	app, logger := newApp(t)
	root, err := feeders.ParseYAML([]byte(`
scheduler:
  seconds: true
  jobs:
    heartbeat:
      spec: "* * * * * *"
      message: tick
`))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, app.BuildAndStart(ctx, root))

	h := heartbeat(t, app)
	assert.Equal(t, "tick", h.Message)
	require.Eventually(t, func() bool { return h.Runs() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.True(t, logger.Contains("INFO", "tick"))
	assert.True(t, logger.Contains("INFO", "Scheduler started"))

	n, err := app.Node(ModuleName)
	require.NoError(t, err)
	m, ok := modgraph.Instance[Module](n)
	require.True(t, ok)
	assert.Same(t, m, h.scheduler)
	assert.Equal(t, 1, m.Entries())

	require.NoError(t, app.Shutdown(ctx))
	assert.Equal(t, 0, m.Entries())
	assert.Equal(t, modgraph.StateStopped, n.State())
}

func TestDefaults(t *testing.T) {
	app, _ := newApp(t)
	root, err := feeders.ParseYAML([]byte("scheduler: {}\n"))
	require.NoError(t, err)
	require.NoError(t, app.Build(context.Background(), root))

	h := heartbeat(t, app)
	assert.Equal(t, "@every 1m", h.Spec)
	assert.Equal(t, "heartbeat", h.Message)
	assert.Equal(t, "UTC", h.scheduler.Timezone)
	assert.False(t, h.scheduler.Seconds)
}

func TestShutdownNow(t *testing.T) {
	app, _ := newApp(t)
	root, err := feeders.ParseYAML([]byte("scheduler:\n  timezone: Europe/Berlin\n"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, app.BuildAndStart(ctx, root))
	require.NoError(t, app.ShutdownNow(ctx))

	n, err := app.Node(ModuleName)
	require.NoError(t, err)
	assert.Equal(t, modgraph.StateStopped, n.State())
}

func TestInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "five fields with seconds",
			yaml: "scheduler:\n  seconds: true\n  jobs:\n    heartbeat:\n      spec: \"* * * * *\"\n",
			want: ErrInvalidSpec,
		},
		{
			name: "garbage spec",
			yaml: "scheduler:\n  jobs:\n    heartbeat:\n      spec: every now and then\n",
			want: ErrInvalidSpec,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newApp(t)
			root, err := feeders.ParseYAML([]byte(tt.yaml))
			require.NoError(t, err)
			err = app.Build(context.Background(), root)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown timezone", func(t *testing.T) {
		app, _ := newApp(t)
		root, err := feeders.ParseYAML([]byte("scheduler:\n  timezone: Mars/Olympus\n"))
		require.NoError(t, err)
		require.Error(t, app.Build(context.Background(), root))
	})
}

func TestScheduleBeforeConfigure(t *testing.T) {
	m := &Module{}
	_, err := m.Parse("@hourly")
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = m.Schedule(nil, func() {})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 0, m.Entries())
}
