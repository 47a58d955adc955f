package modgraph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modgraph/attributes"
	"github.com/GoCodeAlone/modgraph/config"
)

// Node is one live element of the component tree: a module, layer or
// submodule instance together with its lifecycle state.
type Node struct {
	app      *Application
	desc     *Descriptor
	parent   *Node
	children []*Node
	path     string
	instance any
	hooks    hooks
	attrs    *attributes.Store

	mu      sync.Mutex
	section *config.Node
	state   State
	forced  bool
	done    chan struct{}
}

func newNode(app *Application, d *Descriptor, parent *Node, instance any, section *config.Node) *Node {
	path := d.name
	if parent != nil {
		path = parent.path + "/" + d.name
	}
	return &Node{
		app:      app,
		desc:     d,
		parent:   parent,
		path:     path,
		instance: instance,
		hooks:    resolveHooks(d, instance),
		attrs:    attributes.New(),
		section:  section,
		state:    StateCreated,
		done:     make(chan struct{}),
	}
}

// Path is the slash-separated chain of names from the top-level module.
func (n *Node) Path() string { return n.path }

func (n *Node) Name() string { return n.desc.name }

func (n *Node) Kind() Kind { return n.desc.kind }

func (n *Node) Descriptor() *Descriptor { return n.desc }

func (n *Node) Instance() any { return n.instance }

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// Attributes returns the per-node attribute store.
func (n *Node) Attributes() *attributes.Store { return n.attrs }

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Section returns the configuration section the node was last bound from.
func (n *Node) Section() *config.Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.section
}

// Instance returns the node's instance as *T.
func Instance[T any](n *Node) (*T, bool) {
	if n == nil {
		return nil, false
	}
	t, ok := n.instance.(*T)
	return t, ok
}

// relay returns the children lifecycle calls propagate to.
func (n *Node) relay() []*Node {
	if n.desc.kind == KindLayer && !n.desc.autoInvoke {
		return nil
	}
	return n.children
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

func (n *Node) illegal(op string, s State) error {
	return &IllegalTransitionError{Path: n.path, Op: op, State: s}
}

// configure runs the configure hooks of a freshly bound node.
func (n *Node) configure(ctx context.Context) error {
	if s := n.State(); s != StateCreated {
		return n.illegal("configure", s)
	}
	if err := n.runHooks(ctx, "configure", n.hooks.configure); err != nil {
		n.fail(ctx, err)
		return err
	}
	n.setState(StateConfigured)
	n.app.emitNode(ctx, EventTypeNodeConfigured, n, nil)
	return nil
}

// Start runs the node's start hooks and then starts its children in
// declaration order. A layer without AutoInvoke starts only itself. The
// first failure is returned and later siblings are not started.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.state != StateConfigured {
		s := n.state
		n.mu.Unlock()
		return n.illegal("start", s)
	}
	n.state = StateStarting
	n.mu.Unlock()

	n.app.logger.Debug("Starting node", "node", n.path)
	if err := n.runHooks(ctx, "start", n.hooks.start); err != nil {
		n.fail(ctx, err)
		return err
	}
	n.setState(StateStarted)
	n.app.emitNode(ctx, EventTypeNodeStarted, n, nil)

	for _, c := range n.relay() {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) fail(ctx context.Context, err error) {
	n.setState(StateFailed)
	n.app.logger.Error("Node failed", "node", n.path, "error", err)
	n.app.emitNode(ctx, EventTypeNodeFailed, n, err)
}

// Shutdown stops the node's children in reverse order and then runs the
// node's own shutdown hooks. Failures are collected and do not stop the
// rest of the sequence. A hook that exceeds the hook timeout escalates the
// node to its ShutdownNow hooks.
//
// Shutdown of a stopped node is a no-op. A caller arriving while another
// shutdown is in progress waits for it to finish.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateStopped:
		n.mu.Unlock()
		return nil
	case StateStopping:
		done := n.done
		n.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateStarted:
		n.state = StateStopping
		n.mu.Unlock()
	default:
		s := n.state
		n.mu.Unlock()
		return n.illegal("shutdown", s)
	}

	n.app.logger.Debug("Stopping node", "node", n.path)
	var errs []error
	for _, c := range slices.Backward(n.relay()) {
		if !c.running() {
			continue
		}
		if err := c.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := n.runHooks(ctx, "shutdown", n.hooks.shutdown); err != nil {
		n.app.logger.Error("Node shutdown failed", "node", n.path, "error", err)
		errs = append(errs, err)
		if errors.Is(err, ErrHookTimeout) || ctx.Err() != nil {
			n.app.logger.Warn("Graceful shutdown did not complete, shutting down immediately", "node", n.path)
			if err := n.kill(context.WithoutCancel(ctx)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	n.finish(ctx)
	return errors.Join(errs...)
}

// ShutdownNow stops the node and its children immediately. Every child and
// every hook is attempted; failures are logged per node and returned joined.
// When a graceful shutdown of the node is already running, ShutdownNow runs
// the immediate hooks and leaves completion to it.
func (n *Node) ShutdownNow(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateStopped || n.forced {
		n.mu.Unlock()
		return nil
	}
	switch n.state {
	case StateStarted, StateStopping, StateFailed:
	default:
		s := n.state
		n.mu.Unlock()
		return n.illegal("shutdown-now", s)
	}
	graceful := n.state == StateStopping
	n.state = StateStopping
	n.forced = true
	n.mu.Unlock()

	n.app.logger.Debug("Stopping node immediately", "node", n.path)
	var errs []error
	for _, c := range slices.Backward(n.relay()) {
		if !c.started() {
			continue
		}
		if err := c.ShutdownNow(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.runAll(ctx, "shutdown-now", n.hooks.shutdownNow); err != nil {
		errs = append(errs, err)
	}
	if !graceful {
		n.finish(ctx)
	}
	return errors.Join(errs...)
}

// kill runs the immediate hooks after a graceful shutdown timed out.
func (n *Node) kill(ctx context.Context) error {
	n.mu.Lock()
	if n.forced {
		n.mu.Unlock()
		return nil
	}
	n.forced = true
	n.mu.Unlock()
	return n.runAll(ctx, "shutdown-now", n.hooks.shutdownNow)
}

func (n *Node) finish(ctx context.Context) {
	n.mu.Lock()
	n.state = StateStopped
	close(n.done)
	n.mu.Unlock()
	n.app.emitNode(ctx, EventTypeNodeStopped, n, nil)
}

// running reports whether the node reached STARTED in its current cycle.
func (n *Node) running() bool {
	switch n.State() {
	case StateStarted, StateStopping, StateStopped:
		return true
	}
	return false
}

// started reports whether the node ever attempted to start.
func (n *Node) started() bool {
	return n.running() || n.State() == StateFailed
}

// reset returns a stopped subtree to CREATED with a new section so it can
// be bound and started again. Nodes still running are left alone.
func (n *Node) reset(section *config.Node) {
	n.mu.Lock()
	switch n.state {
	case StateStarting, StateStarted, StateStopping:
		n.mu.Unlock()
		return
	}
	n.state = StateCreated
	n.forced = false
	n.done = make(chan struct{})
	n.section = section
	n.mu.Unlock()
	for _, c := range n.children {
		c.reset(childSection(section, c.desc.name))
	}
}

func (n *Node) runHooks(ctx context.Context, op string, fns []hookFunc) error {
	for i, fn := range fns {
		if err := n.app.callHook(ctx, n.instance, fn); err != nil {
			return fmt.Errorf("%s hook %d of %s: %w", op, i, n.path, err)
		}
	}
	return nil
}

// runAll runs every hook regardless of earlier failures.
func (n *Node) runAll(ctx context.Context, op string, fns []hookFunc) error {
	var errs []error
	for i, fn := range fns {
		if err := n.app.callHook(ctx, n.instance, fn); err != nil {
			err = fmt.Errorf("%s hook %d of %s: %w", op, i, n.path, err)
			n.app.logger.Error("Node hook failed", "node", n.path, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// walk visits n and its descendants depth-first in declaration order.
func (n *Node) walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.walk(fn); err != nil {
			return err
		}
	}
	return nil
}
