package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/linker"
)

// Heartbeat logs Message on every tick of Spec.
type Heartbeat struct {
	Spec    string
	Message string

	scheduler *Module
	logger    modgraph.Logger
	schedule  cron.Schedule
	entry     cron.EntryID
	runs      atomic.Int64
}

// HeartbeatDescriptor declares the heartbeat submodule.
func HeartbeatDescriptor() *modgraph.Descriptor {
	return modgraph.NewSubModule[Heartbeat]("heartbeat").
		Bind(
			linker.ValueOr("Spec", "spec", "@every 1m", func(h *Heartbeat, v string) { h.Spec = v }),
			linker.ValueOr("Message", "message", "heartbeat", func(h *Heartbeat, v string) { h.Message = v }),
		).
		OnConfigure(func(_ context.Context, h *Heartbeat) error {
			s, err := h.scheduler.Parse(h.Spec)
			if err != nil {
				return err
			}
			h.schedule = s
			return nil
		}).
		OnStart(func(_ context.Context, h *Heartbeat) error {
			id, err := h.scheduler.Schedule(h.schedule, h.beat)
			if err != nil {
				return err
			}
			h.entry = id
			return nil
		}).
		OnShutdown(func(_ context.Context, h *Heartbeat) error {
			h.scheduler.Remove(h.entry)
			return nil
		}).
		Descriptor()
}

func (h *Heartbeat) beat() {
	n := h.runs.Add(1)
	h.logger.Info(h.Message, "beat", n)
}

// Runs returns how often the heartbeat fired.
func (h *Heartbeat) Runs() int64 { return h.runs.Load() }
