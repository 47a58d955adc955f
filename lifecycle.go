package modgraph

import (
	"context"

	"github.com/GoCodeAlone/modgraph/config"
)

// Instances may implement any of the following optional interfaces instead
// of declaring hooks on their descriptor. An interface method is used only
// when the descriptor declares no hook of the same kind.

// Configurable instances are configured after the whole tree is bound.
type Configurable interface {
	Configure(ctx context.Context) error
}

// Startable instances are started parent-first.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable instances are shut down gracefully, children first.
type Stoppable interface {
	Shutdown(ctx context.Context) error
}

// Killable instances support immediate shutdown, used by ShutdownNow and
// when a graceful shutdown exceeds its timeout.
type Killable interface {
	ShutdownNow(ctx context.Context) error
}

// Reloadable instances apply a changed configuration section themselves
// instead of being restarted.
type Reloadable interface {
	Reload(ctx context.Context, section *config.Node) error
}

type hookFunc func(ctx context.Context, instance any) error

type reloadFunc func(ctx context.Context, instance any, section *config.Node) error

// hooks are the lifecycle hooks of one node, resolved from its descriptor
// and the optional interfaces of its instance.
type hooks struct {
	configure   []hookFunc
	start       []hookFunc
	shutdown    []hookFunc
	shutdownNow []hookFunc
	reload      []reloadFunc
}

func resolveHooks(d *Descriptor, instance any) hooks {
	h := hooks{
		configure:   d.configure,
		start:       d.start,
		shutdown:    d.shutdown,
		shutdownNow: d.shutdownNow,
		reload:      d.reload,
	}
	if c, ok := instance.(Configurable); ok && len(h.configure) == 0 {
		h.configure = []hookFunc{func(ctx context.Context, _ any) error { return c.Configure(ctx) }}
	}
	if s, ok := instance.(Startable); ok && len(h.start) == 0 {
		h.start = []hookFunc{func(ctx context.Context, _ any) error { return s.Start(ctx) }}
	}
	if s, ok := instance.(Stoppable); ok && len(h.shutdown) == 0 {
		h.shutdown = []hookFunc{func(ctx context.Context, _ any) error { return s.Shutdown(ctx) }}
	}
	if k, ok := instance.(Killable); ok && len(h.shutdownNow) == 0 {
		h.shutdownNow = []hookFunc{func(ctx context.Context, _ any) error { return k.ShutdownNow(ctx) }}
	}
	if r, ok := instance.(Reloadable); ok && len(h.reload) == 0 {
		h.reload = []reloadFunc{func(ctx context.Context, _ any, section *config.Node) error {
			return r.Reload(ctx, section)
		}}
	}
	return h
}
