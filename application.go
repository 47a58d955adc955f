// Package modgraph turns a hierarchical configuration document into a live
// tree of modules, layers and submodules and drives their lifecycle.
//
// Modules are declared with NewModule, NewLayer and NewSubModule builders
// and registered on an Application. Build instantiates every module that
// has a configuration section through the registry, binds its configuration
// with the linker and runs configure hooks. Start then starts the tree
// parent-first; Shutdown and ShutdownNow stop it children-first.
package modgraph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/modgraph/attributes"
	"github.com/GoCodeAlone/modgraph/config"
	"github.com/GoCodeAlone/modgraph/hclexpr"
	"github.com/GoCodeAlone/modgraph/linker"
	"github.com/GoCodeAlone/modgraph/phase"
	"github.com/GoCodeAlone/modgraph/registry"
)

// DefaultHookTimeout bounds each lifecycle hook unless WithHookTimeout is
// given.
const DefaultHookTimeout = 30 * time.Second

// Application owns the registry, the phase gate and the component tree.
type Application struct {
	id           string
	name         string
	logger       Logger
	registry     *registry.Registry
	linker       *linker.Linker
	gate         *phase.Gate
	token        *phase.Token
	hookTimeout  time.Duration
	converter    linker.ScriptConverter
	deserializer linker.ElementDeserializer
	attrs        *attributes.Store
	observers    observers

	// buildMu and reloadMu serialize Build and Reload. Hooks run without
	// holding mu so they may inspect the application.
	buildMu  sync.Mutex
	reloadMu sync.Mutex

	mu      sync.RWMutex
	modules []*Descriptor
	names   map[string]bool
	roots   []*Node
	index   *moduleIndex
	built   bool
}

// New creates an application. WithLogger is required.
func New(opts ...Option) (*Application, error) {
	a := &Application{
		name:        "modgraph",
		hookTimeout: DefaultHookTimeout,
		attrs:       attributes.New(),
		names:       make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.logger == nil {
		return nil, ErrLoggerNotSet
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	a.id = id.String()

	if a.registry == nil {
		a.registry = registry.New(registry.WithLogger(a.logger), registry.WithName(a.name))
	}
	if a.gate == nil {
		a.token = phase.NewToken(a.name)
		a.gate = phase.NewGate(phase.NotStarted, a.token)
	}
	a.gate.OnChange(func(from, to phase.Phase) {
		a.emit(context.Background(), EventTypePhaseChanged, PhaseEvent{From: from.String(), To: to.String()})
	})
	if err := a.registerDefaults(); err != nil {
		return nil, fmt.Errorf("register defaults: %w", err)
	}
	a.linker = linker.New(a.registry)
	return a, nil
}

// registerDefaults provides the collaborators every application needs
// unless the host registered its own.
func (a *Application) registerDefaults() error {
	r := a.registry
	switch {
	case a.deserializer != nil:
		if err := registry.ProvideAs[linker.ElementDeserializer](r, a.deserializer); err != nil {
			return err
		}
	case !r.Registered(reflect.TypeFor[linker.ElementDeserializer]()):
		if err := r.Register(registry.Bean[linker.StandardDeserializer](nil).Descriptor()); err != nil {
			return err
		}
		if err := registry.Bind[linker.ElementDeserializer, linker.StandardDeserializer](r); err != nil {
			return err
		}
	}

	switch {
	case a.converter != nil:
		if err := registry.ProvideAs[linker.ScriptConverter](r, a.converter); err != nil {
			return err
		}
	case !r.Registered(reflect.TypeFor[linker.ScriptConverter]()):
		conv := registry.Bean(func(context.Context) (*hclexpr.Converter, error) {
			return hclexpr.New(), nil
		})
		if err := r.Register(conv.Descriptor()); err != nil {
			return err
		}
		if err := registry.Bind[linker.ScriptConverter, hclexpr.Converter](r); err != nil {
			return err
		}
	}

	if !r.Registered(reflect.TypeFor[Introspector]()) {
		if err := registry.ProvideAs[Introspector](r, a); err != nil {
			return err
		}
	}
	if !r.Registered(reflect.TypeFor[Logger]()) {
		if err := registry.ProvideAs(r, a.logger); err != nil {
			return err
		}
	}
	return nil
}

// ID is a UUIDv7 unique to this application instance.
func (a *Application) ID() string { return a.id }

func (a *Application) Name() string { return a.name }

func (a *Application) Logger() Logger { return a.logger }

func (a *Application) Registry() *registry.Registry { return a.registry }

func (a *Application) Gate() *phase.Gate { return a.gate }

// Phase returns the current execution phase.
func (a *Application) Phase() phase.Phase { return a.gate.Current() }

func (a *Application) Attributes() *attributes.Store { return a.attrs }

// RegisterModule adds top-level module descriptors. Descriptors are
// validated here; names must be unique.
func (a *Application) RegisterModule(descs ...*Descriptor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return ErrAlreadyBuilt
	}
	for _, d := range descs {
		if d == nil {
			return ErrNilDescriptor
		}
		if d.kind != KindModule {
			return fmt.Errorf("%w: top-level %s %q must be a module", ErrInvalidDescriptor, d.kind, d.name)
		}
		if err := d.validate(""); err != nil {
			return err
		}
		if a.names[d.name] {
			return fmt.Errorf("%w: %q", ErrDuplicateModule, d.name)
		}
		a.names[d.name] = true
		a.modules = append(a.modules, d)
		a.logger.Debug("Registered module", "module", d.name, "children", len(d.children))
	}
	return nil
}

// Build creates the component tree from root. Every registered module with
// a section in root is instantiated, bound and configured; modules without
// a section are skipped. Any failure aborts the whole build and nothing is
// published to the module provider.
func (a *Application) Build(ctx context.Context, root *config.Node) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()
	a.mu.RLock()
	built, modules := a.built, slices.Clone(a.modules)
	a.mu.RUnlock()
	if built {
		return ErrAlreadyBuilt
	}
	if root == nil {
		root = config.NewObject("")
	}
	a.setPhase(phase.Config)

	if err := a.registerBeans(modules); err != nil {
		return err
	}

	var roots []*Node
	for _, d := range modules {
		section := root.Child(d.name)
		if section == nil || section.IsNone() {
			a.logger.Debug("Skipping module without configuration section", "module", d.name)
			continue
		}
		n, err := a.instantiate(ctx, d, nil, section)
		if err != nil {
			return err
		}
		roots = append(roots, n)
	}

	stage := newModuleIndex(roots)
	for _, n := range roots {
		if err := a.bindTree(ctx, n, stage); err != nil {
			return err
		}
	}
	for _, n := range roots {
		if err := a.configureTree(ctx, n); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.roots = roots
	a.index = stage
	a.built = true
	a.mu.Unlock()
	a.registry.Seal()
	a.logger.Info("Application built", "app", a.name, "modules", len(roots))
	return nil
}

// registerBeans registers a default descriptor for every node type the
// host did not register. Types used by a single node are singletons; types
// shared by several nodes are transient so that each node owns its
// instance.
func (a *Application) registerBeans(modules []*Descriptor) error {
	uses := make(map[reflect.Type]int)
	first := make(map[reflect.Type]*Descriptor)
	var count func(d *Descriptor)
	count = func(d *Descriptor) {
		if d.typ != statelessType {
			uses[d.typ]++
			if first[d.typ] == nil {
				first[d.typ] = d
			}
		}
		for _, c := range d.children {
			count(c)
		}
	}
	for _, d := range modules {
		count(d)
	}
	for t, n := range uses {
		if a.registry.Registered(t) {
			continue
		}
		scope := registry.Singleton
		if n > 1 {
			scope = registry.Transient
		}
		if err := a.registry.Register(first[t].bean(scope)); err != nil {
			return fmt.Errorf("register %s: %w", t, err)
		}
	}
	return nil
}

func (a *Application) instantiate(ctx context.Context, d *Descriptor, parent *Node, section *config.Node) (*Node, error) {
	var instance any = &Stateless{}
	if d.typ != statelessType {
		v, err := a.registry.Resolve(ctx, d.typ)
		if err != nil {
			return nil, fmt.Errorf("instantiate %s %q: %w", d.kind, d.name, err)
		}
		instance = v
	}
	n := newNode(a, d, parent, instance, section)
	for _, cd := range d.children {
		c, err := a.instantiate(ctx, cd, n, childSection(section, cd.name))
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, c)
	}
	return n, nil
}

// childSection returns the section of a child node. An absent or "none"
// section reads as an empty object.
func childSection(section *config.Node, name string) *config.Node {
	if c := section.Child(name); c != nil && !c.IsNone() {
		return c
	}
	return config.NewObject(name)
}

// bindTree binds every node of the subtree that is still CREATED.
func (a *Application) bindTree(ctx context.Context, n *Node, provider linker.ModuleProvider) error {
	if n.State() != StateCreated {
		return nil
	}
	module := n.module().desc.name
	section := n.Section()
	if section.Kind != config.KindObject {
		return &linker.ConfigurationError{
			Owner:  n.desc.typ,
			Field:  "<section>",
			Key:    n.path,
			Module: module,
			Err:    fmt.Errorf("%w: section is %s, want object", linker.ErrTypeMismatch, section.Kind),
		}
	}
	if err := a.linker.Bind(ctx, section, n.instance, n.desc.spec, provider); err != nil {
		return linker.WithModule(err, module)
	}
	if n.desc.selfRef != nil {
		n.desc.selfRef(n.instance)
	}
	a.logger.Debug("Bound node", "node", n.path, "keys", n.desc.spec.Len())
	for _, c := range n.children {
		if err := a.bindTree(ctx, c, provider); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) configureTree(ctx context.Context, n *Node) error {
	if n.State() != StateCreated {
		return nil
	}
	if err := n.configure(ctx); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := a.configureTree(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// module returns the nearest module at or above n.
func (n *Node) module() *Node {
	for m := n; m != nil; m = m.parent {
		if m.desc.kind == KindModule {
			return m
		}
	}
	return n
}

func (a *Application) builtRoots() ([]*Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.built {
		return nil, ErrNotBuilt
	}
	return slices.Clone(a.roots), nil
}

// Start starts the top-level modules in registration order. The first
// failure is returned and later modules are not started. On success the
// phase moves to EXECUTE.
func (a *Application) Start(ctx context.Context) error {
	roots, err := a.builtRoots()
	if err != nil {
		return err
	}
	a.setPhase(phase.Start)
	a.logger.Info("Starting application", "app", a.name, "modules", len(roots))
	for _, n := range roots {
		if err := n.Start(ctx); err != nil {
			return err
		}
	}
	a.setPhase(phase.Execute)
	a.logger.Info("Application started", "app", a.name)
	return nil
}

// BuildAndStart builds the tree from root and starts it. When start fails,
// the nodes that did start are shut down before the error is returned.
func (a *Application) BuildAndStart(ctx context.Context, root *config.Node) error {
	if err := a.Build(ctx, root); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		if serr := a.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}
	return nil
}

// Shutdown stops the started top-level modules in reverse order. It is
// idempotent: stopped modules are skipped without invoking hooks again.
func (a *Application) Shutdown(ctx context.Context) error {
	roots, err := a.builtRoots()
	if err != nil {
		return err
	}
	a.logger.Info("Shutting down application", "app", a.name)
	var errs []error
	for _, n := range slices.Backward(roots) {
		if !n.running() {
			continue
		}
		if err := n.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShutdownNow stops every top-level module immediately. Failures are
// isolated per node and returned joined.
func (a *Application) ShutdownNow(ctx context.Context) error {
	roots, err := a.builtRoots()
	if err != nil {
		return err
	}
	a.logger.Warn("Shutting down application immediately", "app", a.name)
	var errs []error
	for _, n := range slices.Backward(roots) {
		if !n.started() {
			continue
		}
		if err := n.ShutdownNow(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Node returns the node at path. Elements may be given separately or
// joined with "/".
func (a *Application) Node(path ...string) (*Node, error) {
	p := strings.Join(path, "/")
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.index != nil {
		if n, ok := a.index.byPath[p]; ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, p)
}

// Nodes lists every node depth-first in declaration order.
func (a *Application) Nodes() []*Node {
	a.mu.RLock()
	roots := a.roots
	a.mu.RUnlock()
	var out []*Node
	for _, r := range roots {
		_ = r.walk(func(n *Node) error {
			out = append(out, n)
			return nil
		})
	}
	return out
}

// ProvideModule resolves a published node path, such as a top-level module
// name, to its instance when that instance is assignable to t.
func (a *Application) ProvideModule(name string, t reflect.Type) (any, bool) {
	a.mu.RLock()
	idx := a.index
	a.mu.RUnlock()
	return idx.ProvideModule(name, t)
}

// ModuleName returns the path of the published node owning instance.
func (a *Application) ModuleName(instance any) (string, bool) {
	a.mu.RLock()
	idx := a.index
	a.mu.RUnlock()
	return idx.ModuleName(instance)
}

// RegisterObserver subscribes obs to the given event types, or to all
// events when none are given.
func (a *Application) RegisterObserver(obs Observer, eventTypes ...string) error {
	if obs == nil {
		return fmt.Errorf("observer: %w", errNilOption)
	}
	a.observers.register(obs, eventTypes...)
	a.logger.Debug("Observer registered", "observerID", obs.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes obs. Removing an unknown observer is not an
// error.
func (a *Application) UnregisterObserver(obs Observer) error {
	if a.observers.unregister(obs.ObserverID()) {
		a.logger.Debug("Observer unregistered", "observerID", obs.ObserverID())
	}
	return nil
}

func (a *Application) setPhase(p phase.Phase) {
	if err := a.gate.Set(a.token, p); err != nil {
		a.logger.Warn("Could not change execution phase", "phase", p.String(), "error", err)
	}
}

func (a *Application) source() string {
	return "modgraph/" + a.name
}

func (a *Application) emit(ctx context.Context, eventType string, data any) {
	a.observers.notify(ctx, a.logger, NewCloudEvent(eventType, a.source(), data))
}

func (a *Application) emitNode(ctx context.Context, eventType string, n *Node, err error) {
	data := NodeEvent{Path: n.path, Kind: n.desc.kind, State: n.State()}
	if err != nil {
		data.Error = err.Error()
	}
	a.emit(ctx, eventType, data)
}

// callHook runs fn bounded by the hook timeout. Panics are recovered and
// returned as ErrHookPanic.
func (a *Application) callHook(ctx context.Context, instance any, fn hookFunc) error {
	var cancel context.CancelFunc
	if a.hookTimeout > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, a.hookTimeout, ErrHookTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("%w: %v", ErrHookPanic, r)
			}
		}()
		errc <- fn(ctx, instance)
	}()

	select {
	case err := <-errc:
		if err != nil && errors.Is(context.Cause(ctx), ErrHookTimeout) {
			return fmt.Errorf("%w after %s: %w", ErrHookTimeout, a.hookTimeout, err)
		}
		return err
	case <-ctx.Done():
		if cause := context.Cause(ctx); errors.Is(cause, ErrHookTimeout) {
			return fmt.Errorf("%w after %s", ErrHookTimeout, a.hookTimeout)
		}
		return ctx.Err()
	}
}
