package modgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modgraph/config"
)

// Reload applies a new configuration document to a built application.
//
// Only top-level modules whose section changed are touched. A module with
// reload hooks (or a Reloadable instance) receives its new section through
// them. Any other module is shut down if running, rebound from the new
// section, configured and started again. When rebinding fails the previous
// section is restored and the module restarted with it.
//
// Rebinding reuses the live instance, so links and injected references held
// by other modules stay valid. Optional keys missing from the new section
// keep their current value; ValueOr bindings fall back to their default.
//
// Modules added to or removed from the document are reported but not
// created or stopped; that requires a new application.
func (a *Application) Reload(ctx context.Context, root *config.Node) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	roots, err := a.builtRoots()
	if err != nil {
		return err
	}
	if root == nil {
		root = config.NewObject("")
	}
	a.mu.RLock()
	modules := a.modules
	a.mu.RUnlock()

	started := time.Now()
	current := make(map[string]*Node, len(roots))
	for _, n := range roots {
		current[n.desc.name] = n
	}

	var changed []string
	var errs []error
	for _, d := range modules {
		section := root.Child(d.name)
		if section != nil && section.IsNone() {
			section = nil
		}
		n, live := current[d.name]
		switch {
		case !live && section != nil:
			a.logger.Warn("Module added to configuration; restart the application to create it", "module", d.name)
		case live && section == nil:
			a.logger.Warn("Module removed from configuration; restart the application to stop it", "module", d.name)
		case live && !n.Section().Equal(section):
			changed = append(changed, d.name)
			if err := a.reloadNode(ctx, n, section); err != nil {
				errs = append(errs, fmt.Errorf("reload %s: %w", d.name, err))
			}
		}
	}

	if len(changed) == 0 {
		a.logger.Debug("Configuration reloaded without changes")
		return errors.Join(errs...)
	}
	a.logger.Info("Configuration reloaded", "modules", changed, "duration", time.Since(started).String())
	a.emit(ctx, EventTypeConfigReloaded, ReloadEvent{Changed: changed})
	return errors.Join(errs...)
}

func (a *Application) reloadNode(ctx context.Context, n *Node, section *config.Node) error {
	if len(n.hooks.reload) > 0 {
		for i, fn := range n.hooks.reload {
			err := a.callHook(ctx, n.instance, func(ctx context.Context, instance any) error {
				return fn(ctx, instance, section)
			})
			if err != nil {
				return fmt.Errorf("reload hook %d of %s: %w", i, n.path, err)
			}
		}
		n.mu.Lock()
		n.section = section
		n.mu.Unlock()
		return nil
	}

	wasRunning := n.State() == StateStarted
	if wasRunning {
		if err := n.Shutdown(ctx); err != nil {
			return err
		}
	}
	previous := n.Section()
	err := a.rebind(ctx, n, section)
	if err != nil {
		a.logger.Error("Reload failed, restoring previous configuration", "module", n.path, "error", err)
		if rerr := a.rebind(ctx, n, previous); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	if wasRunning {
		if serr := n.Start(ctx); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

func (a *Application) rebind(ctx context.Context, n *Node, section *config.Node) error {
	n.reset(section)
	if err := a.bindTree(ctx, n, a); err != nil {
		return err
	}
	return a.configureTree(ctx, n)
}
