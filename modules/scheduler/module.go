// Package scheduler provides a cron scheduler module.
//
// The "scheduler" module owns a "jobs" layer that starts its submodules
// together with the scheduler. The bundled "heartbeat" submodule logs a
// message on a cron schedule:
//
//	scheduler:
//	  timezone: Europe/Berlin
//	  seconds: true
//	  jobs:
//	    heartbeat:
//	      spec: "*/10 * * * * *"
//	      message: still alive
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/linker"
	"github.com/GoCodeAlone/modgraph/registry"
)

// ModuleName is the configuration section of the module.
const ModuleName = "scheduler"

var (
	ErrNotConfigured = errors.New("scheduler not configured")
	ErrInvalidSpec   = errors.New("invalid cron spec")
)

// Module wraps a cron scheduler.
type Module struct {
	Timezone string
	Seconds  bool

	logger   modgraph.Logger
	parser   cron.ScheduleParser
	location *time.Location

	mu   sync.Mutex
	cron *cron.Cron
}

// Descriptor declares the module, its jobs layer and the heartbeat
// submodule.
func Descriptor() *modgraph.Descriptor {
	jobs := modgraph.NewLayer[modgraph.Stateless]("jobs").
		AutoInvoke().
		Children(HeartbeatDescriptor())

	return modgraph.NewModule[Module](ModuleName).
		Bind(
			linker.ValueOr("Timezone", "timezone", "UTC", func(m *Module, v string) { m.Timezone = v }),
			linker.ValueOr("Seconds", "seconds", false, func(m *Module, v bool) { m.Seconds = v }),
		).
		OnConfigure(func(_ context.Context, m *Module) error { return m.configure() }).
		OnStart(func(_ context.Context, m *Module) error { return m.start() }).
		OnShutdown(func(ctx context.Context, m *Module) error { return m.stop(ctx) }).
		OnShutdownNow(func(_ context.Context, m *Module) error { return m.stopNow() }).
		Children(jobs.Descriptor()).
		Descriptor()
}

// Register registers the module's managed types and its descriptor.
func Register(app *modgraph.Application) error {
	err := app.Registry().Register(
		registry.Bean[Module](nil).
			Inject(registry.InjectAs("logger", func(m *Module, l modgraph.Logger) { m.logger = l })).
			Descriptor(),
		registry.Bean[Heartbeat](nil).
			Inject(
				registry.Inject("scheduler", func(h *Heartbeat, m *Module) { h.scheduler = m }),
				registry.InjectAs("logger", func(h *Heartbeat, l modgraph.Logger) { h.logger = l }),
			).
			Descriptor(),
	)
	if err != nil {
		return fmt.Errorf("register scheduler types: %w", err)
	}
	return app.RegisterModule(Descriptor())
}

func (m *Module) configure() error {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", m.Timezone, err)
	}
	m.location = loc

	opts := []cron.Option{
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{m.logger}),
		cron.WithChain(cron.Recover(cronLogger{m.logger})),
	}
	if m.Seconds {
		m.parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		opts = append(opts, cron.WithSeconds())
	} else {
		m.parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}

	m.mu.Lock()
	m.cron = cron.New(opts...)
	m.mu.Unlock()
	return nil
}

// Parse validates spec with the module's field layout.
func (m *Module) Parse(spec string) (cron.Schedule, error) {
	if m.parser == nil {
		return nil, ErrNotConfigured
	}
	s, err := m.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSpec, spec, err)
	}
	return s, nil
}

// Schedule adds fn to the scheduler and returns its entry id.
func (m *Module) Schedule(schedule cron.Schedule, fn func()) (cron.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron == nil {
		return 0, ErrNotConfigured
	}
	return m.cron.Schedule(schedule, cron.FuncJob(fn)), nil
}

// Remove drops a scheduled entry. Running invocations finish.
func (m *Module) Remove(id cron.EntryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		m.cron.Remove(id)
	}
}

// Entries returns the number of scheduled entries.
func (m *Module) Entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron == nil {
		return 0
	}
	return len(m.cron.Entries())
}

func (m *Module) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron == nil {
		return ErrNotConfigured
	}
	m.cron.Start()
	m.logger.Info("Scheduler started", "timezone", m.location.String(), "seconds", m.Seconds)
	return nil
}

// stop halts the scheduler and waits for running jobs.
func (m *Module) stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		m.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopNow halts the scheduler without waiting for running jobs.
func (m *Module) stopNow() error {
	m.mu.Lock()
	c := m.cron
	m.mu.Unlock()
	if c != nil {
		c.Stop()
	}
	return nil
}

// cronLogger adapts modgraph.Logger to cron.Logger.
type cronLogger struct {
	logger modgraph.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
