package modgraph

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/GoCodeAlone/modgraph/attributes"
	"github.com/GoCodeAlone/modgraph/config"
	"github.com/GoCodeAlone/modgraph/linker"
	"github.com/GoCodeAlone/modgraph/registry"
)

// Kind distinguishes the three node kinds of the component tree.
type Kind int

const (
	KindModule Kind = iota
	KindLayer
	KindSubModule
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindLayer:
		return "layer"
	case KindSubModule:
		return "submodule"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name in JSON and logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Stateless is the instance type of layers that only group children. Nodes
// of this type are not resolved through the registry.
type Stateless struct{}

var statelessType = reflect.TypeFor[*Stateless]()

// Descriptor is the registration-time schema of one node of the component
// tree. Descriptors are built once with a Builder and never mutated.
type Descriptor struct {
	kind        Kind
	name        string
	typ         reflect.Type
	spec        *linker.Spec
	autoInvoke  bool
	selfRef     func(instance any)
	configure   []hookFunc
	start       []hookFunc
	shutdown    []hookFunc
	shutdownNow []hookFunc
	reload      []reloadFunc
	children    []*Descriptor
	attrs       *attributes.Store

	// bean builds the default registry descriptor for types the host did
	// not register itself.
	bean func(scope registry.Scope) *registry.Descriptor
}

func (d *Descriptor) Name() string { return d.name }

func (d *Descriptor) Kind() Kind { return d.kind }

// Type returns the registry key of the node's instance.
func (d *Descriptor) Type() reflect.Type { return d.typ }

// AutoInvoke reports whether a layer relays lifecycle calls to its children.
// Modules always relay; submodules have no children.
func (d *Descriptor) AutoInvoke() bool { return d.autoInvoke }

func (d *Descriptor) Children() []*Descriptor { return slices.Clone(d.children) }

func (d *Descriptor) Attributes() *attributes.Store { return d.attrs }

// Keys lists the configuration keys bound on this node.
func (d *Descriptor) Keys() []string { return d.spec.Keys() }

// Builder assembles a Descriptor whose instance is *T.
type Builder[T any] struct {
	d        Descriptor
	bindings []linker.Binding[T]
}

func newBuilder[T any](kind Kind, name string) *Builder[T] {
	return &Builder[T]{d: Descriptor{
		kind:  kind,
		name:  name,
		typ:   reflect.TypeFor[*T](),
		attrs: attributes.New(),
		bean: func(scope registry.Scope) *registry.Descriptor {
			b := registry.Bean[T](nil)
			if scope == registry.Transient {
				b.Transient()
			}
			return b.Descriptor()
		},
	}}
}

// NewModule starts a module descriptor. Modules are bound to the top-level
// configuration section of the same name and may own layers and submodules.
func NewModule[T any](name string) *Builder[T] {
	return newBuilder[T](KindModule, name)
}

// NewLayer starts a layer descriptor. Layers group modules and submodules
// and relay lifecycle calls to them only when AutoInvoke is set.
func NewLayer[T any](name string) *Builder[T] {
	return newBuilder[T](KindLayer, name)
}

// NewSubModule starts a submodule descriptor.
func NewSubModule[T any](name string) *Builder[T] {
	return newBuilder[T](KindSubModule, name)
}

// Bind declares configuration bindings for the node's instance.
func (b *Builder[T]) Bind(bindings ...linker.Binding[T]) *Builder[T] {
	b.bindings = append(b.bindings, bindings...)
	return b
}

// SelfRef declares a field that receives the node's own instance once its
// bindings are applied.
func (b *Builder[T]) SelfRef(set func(t *T, self *T)) *Builder[T] {
	b.d.selfRef = func(instance any) {
		t := instance.(*T)
		set(t, t)
	}
	return b
}

// AutoInvoke makes a layer relay Start, Shutdown and ShutdownNow to its
// children.
func (b *Builder[T]) AutoInvoke() *Builder[T] {
	b.d.autoInvoke = true
	return b
}

// Children appends child descriptors in declaration order.
func (b *Builder[T]) Children(children ...*Descriptor) *Builder[T] {
	b.d.children = append(b.d.children, children...)
	return b
}

func (b *Builder[T]) OnConfigure(fns ...func(ctx context.Context, t *T) error) *Builder[T] {
	b.d.configure = appendHooks(b.d.configure, fns)
	return b
}

func (b *Builder[T]) OnStart(fns ...func(ctx context.Context, t *T) error) *Builder[T] {
	b.d.start = appendHooks(b.d.start, fns)
	return b
}

func (b *Builder[T]) OnShutdown(fns ...func(ctx context.Context, t *T) error) *Builder[T] {
	b.d.shutdown = appendHooks(b.d.shutdown, fns)
	return b
}

func (b *Builder[T]) OnShutdownNow(fns ...func(ctx context.Context, t *T) error) *Builder[T] {
	b.d.shutdownNow = appendHooks(b.d.shutdownNow, fns)
	return b
}

// OnReload declares hooks that receive the node's new configuration section
// when it changes. Without reload hooks a changed module is restarted.
func (b *Builder[T]) OnReload(fns ...func(ctx context.Context, t *T, section *config.Node) error) *Builder[T] {
	for _, fn := range fns {
		b.d.reload = append(b.d.reload, func(ctx context.Context, instance any, section *config.Node) error {
			return fn(ctx, instance.(*T), section)
		})
	}
	return b
}

func (b *Builder[T]) Attribute(key string, value any) *Builder[T] {
	b.d.attrs.Set(key, value)
	return b
}

// Descriptor returns a snapshot of the descriptor.
func (b *Builder[T]) Descriptor() *Descriptor {
	d := b.d
	d.spec = linker.NewSpec(b.bindings...)
	d.configure = slices.Clone(b.d.configure)
	d.start = slices.Clone(b.d.start)
	d.shutdown = slices.Clone(b.d.shutdown)
	d.shutdownNow = slices.Clone(b.d.shutdownNow)
	d.reload = slices.Clone(b.d.reload)
	d.children = slices.Clone(b.d.children)
	d.attrs = b.d.attrs.Clone()
	return &d
}

func appendHooks[T any](dst []hookFunc, fns []func(ctx context.Context, t *T) error) []hookFunc {
	for _, fn := range fns {
		dst = append(dst, func(ctx context.Context, instance any) error {
			return fn(ctx, instance.(*T))
		})
	}
	return dst
}

// validate checks names and the allowed parent/child kinds.
func (d *Descriptor) validate(path string) error {
	if d == nil {
		return fmt.Errorf("%w under %q", ErrNilDescriptor, path)
	}
	if path != "" {
		path += "/"
	}
	path += d.name
	if d.name == "" {
		return fmt.Errorf("%w: %s %q has no name", ErrInvalidDescriptor, d.kind, path)
	}
	if d.autoInvoke && d.kind != KindLayer {
		return fmt.Errorf("%w: %s: only layers can auto-invoke", ErrInvalidDescriptor, path)
	}
	if d.typ == statelessType && d.spec.Len() > 0 {
		return fmt.Errorf("%w: %s: stateless node cannot bind configuration", ErrInvalidDescriptor, path)
	}
	seen := make(map[string]bool, len(d.children))
	for _, c := range d.children {
		if c == nil {
			return fmt.Errorf("%w under %q", ErrNilDescriptor, path)
		}
		if !allowedChild(d.kind, c.kind) {
			return fmt.Errorf("%w: %s %s cannot contain %s %q", ErrInvalidDescriptor, d.kind, path, c.kind, c.name)
		}
		if seen[c.name] {
			return fmt.Errorf("%w: %s: duplicate child %q", ErrInvalidDescriptor, path, c.name)
		}
		seen[c.name] = true
		if err := c.validate(path); err != nil {
			return err
		}
	}
	return nil
}

func allowedChild(parent, child Kind) bool {
	switch parent {
	case KindModule:
		return child == KindLayer || child == KindSubModule
	case KindLayer:
		return true
	default:
		return false
	}
}
