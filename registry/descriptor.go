package registry

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/GoCodeAlone/modgraph/attributes"
)

// Descriptor is the registration-time schema for a managed type: its scope,
// its single construction entry point, post-construction hooks and the
// fields requiring injection. Descriptors are immutable once built.
type Descriptor struct {
	typ           reflect.Type
	scope         Scope
	construct     func(ctx context.Context) (any, error)
	postConstruct []func(ctx context.Context, instance any) error
	injections    []injection
	attrs         *attributes.Store
	prebuilt      any
}

type injection struct {
	field  string
	target reflect.Type
	set    func(instance, dep any)
}

// Type returns the registry key of the descriptor.
func (d *Descriptor) Type() reflect.Type { return d.typ }

func (d *Descriptor) Scope() Scope { return d.scope }

// Attributes returns the attribute store attached to the descriptor.
func (d *Descriptor) Attributes() *attributes.Store { return d.attrs }

// Dependencies lists the injection targets in declaration order.
func (d *Descriptor) Dependencies() []reflect.Type {
	deps := make([]reflect.Type, 0, len(d.injections))
	for _, inj := range d.injections {
		deps = append(deps, inj.target)
	}
	return deps
}

// Builder assembles a Descriptor for *T.
type Builder[T any] struct {
	d Descriptor
}

// Bean starts a descriptor for *T. The registry key is the pointer type *T.
// A nil construct allocates a zero T.
func Bean[T any](construct func(ctx context.Context) (*T, error)) *Builder[T] {
	b := &Builder[T]{d: Descriptor{
		typ:   reflect.TypeFor[*T](),
		scope: Singleton,
		attrs: attributes.New(),
	}}
	if construct == nil {
		b.d.construct = func(context.Context) (any, error) { return new(T), nil }
		return b
	}
	b.d.construct = func(ctx context.Context) (any, error) {
		t, err := construct(ctx)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("%w: %s", ErrConstructorReturnedNil, b.d.typ)
		}
		return t, nil
	}
	return b
}

// Transient switches the descriptor to transient scope.
func (b *Builder[T]) Transient() *Builder[T] {
	b.d.scope = Transient
	return b
}

// Singleton switches the descriptor back to singleton scope, the default.
func (b *Builder[T]) Singleton() *Builder[T] {
	b.d.scope = Singleton
	return b
}

// Inject declares fields whose values are resolved from the registry after
// construction, in declaration order.
func (b *Builder[T]) Inject(fields ...Field[T]) *Builder[T] {
	for _, f := range fields {
		b.d.injections = append(b.d.injections, f.inj)
	}
	return b
}

// PostConstruct appends hooks invoked, in order, once all fields are wired.
func (b *Builder[T]) PostConstruct(hooks ...func(ctx context.Context, t *T) error) *Builder[T] {
	for _, h := range hooks {
		b.d.postConstruct = append(b.d.postConstruct, func(ctx context.Context, instance any) error {
			return h(ctx, instance.(*T))
		})
	}
	return b
}

// Attribute attaches a value to the descriptor's attribute store.
func (b *Builder[T]) Attribute(key string, value any) *Builder[T] {
	b.d.attrs.Set(key, value)
	return b
}

// Descriptor returns a snapshot of the descriptor. Later builder calls do
// not affect snapshots already taken.
func (b *Builder[T]) Descriptor() *Descriptor {
	d := b.d
	d.injections = slices.Clone(b.d.injections)
	d.postConstruct = slices.Clone(b.d.postConstruct)
	d.attrs = b.d.attrs.Clone()
	return &d
}

// Field is an injection point on *T.
type Field[T any] struct {
	inj injection
}

// Inject declares a field of *T receiving the managed *D.
func Inject[T, D any](name string, set func(t *T, d *D)) Field[T] {
	return Field[T]{inj: injection{
		field:  name,
		target: reflect.TypeFor[*D](),
		set:    func(instance, dep any) { set(instance.(*T), dep.(*D)) },
	}}
}

// InjectAs declares a field of *T receiving the managed implementation of
// interface I, bound with Bind or provided with ProvideAs.
func InjectAs[T, I any](name string, set func(t *T, i I)) Field[T] {
	return Field[T]{inj: injection{
		field:  name,
		target: reflect.TypeFor[I](),
		set:    func(instance, dep any) { set(instance.(*T), dep.(I)) },
	}}
}
