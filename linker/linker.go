// Package linker binds parsed configuration nodes onto component fields.
//
// Bindings are declared once per owner type with Value, ValueOr, Link and
// Section and collected into a Spec. Bind decodes every value first and
// assigns only when all of them succeeded, so a failed bind leaves the
// instance untouched.
package linker

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/GoCodeAlone/modgraph/config"
	"github.com/GoCodeAlone/modgraph/registry"
)

// Linker binds configuration onto instances. The element deserializer and
// the script converter are resolved from the registry by interface type;
// the standard deserializer is used when none is registered.
type Linker struct {
	resolver registry.Resolver
	fallback ElementDeserializer
}

// New creates a linker resolving collaborators and nested sections through
// resolver, which may be nil.
func New(resolver registry.Resolver) *Linker {
	return &Linker{resolver: resolver, fallback: &StandardDeserializer{}}
}

// Bind applies spec to instance using the configuration object node. A nil
// node is treated as an empty object.
func (l *Linker) Bind(ctx context.Context, node *config.Node, instance any, spec *Spec, provider ModuleProvider) error {
	if spec.Len() == 0 {
		return nil
	}
	if got := reflect.TypeOf(instance); got != spec.owner {
		return fmt.Errorf("%w: spec for %s, instance %s", ErrOwnerMismatch, spec.owner, got)
	}
	if node == nil {
		node = config.NewObject("")
	}

	deser, conv, err := l.collaborators(ctx)
	if err != nil {
		return err
	}
	b := &batch{linker: l, ctx: ctx, deser: deser, conv: conv, provider: provider}
	if err := b.collect(node, instance, spec); err != nil {
		return err
	}
	for _, apply := range b.pending {
		apply()
	}
	return nil
}

func (l *Linker) collaborators(ctx context.Context) (ElementDeserializer, ScriptConverter, error) {
	deser := l.fallback
	var conv ScriptConverter
	if l.resolver == nil {
		return deser, nil, nil
	}
	if l.resolver.Registered(deserializerType) {
		v, err := l.resolver.Resolve(ctx, deserializerType)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve element deserializer: %w", err)
		}
		deser = v.(ElementDeserializer)
	}
	if l.resolver.Registered(converterType) {
		v, err := l.resolver.Resolve(ctx, converterType)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve script converter: %w", err)
		}
		conv = v.(ScriptConverter)
	}
	return deser, conv, nil
}

// batch accumulates assignments for one Bind call.
type batch struct {
	linker   *Linker
	ctx      context.Context
	deser    ElementDeserializer
	conv     ScriptConverter
	provider ModuleProvider
	pending  []func()
}

func (b *batch) collect(node *config.Node, instance any, spec *Spec) error {
	for _, bd := range spec.bindings {
		if err := b.collectOne(node, instance, bd); err != nil {
			return &ConfigurationError{Owner: spec.owner, Field: bd.field, Key: bd.key, Err: err}
		}
	}
	return nil
}

func (b *batch) collectOne(node *config.Node, instance any, bd binding) error {
	raw, err := node.Lookup(bd.key)
	if err != nil {
		return err
	}
	if raw == nil {
		switch {
		case bd.hasDefault:
			b.assign(instance, bd, bd.def)
			return nil
		case bd.required:
			return ErrMissingKey
		default:
			return nil
		}
	}

	switch bd.kind {
	case kindLink:
		return b.collectLink(raw, instance, bd)
	case kindSection:
		return b.collectSection(raw, instance, bd)
	}

	v, err := b.deser.Deserialize(raw, bd.target, b.conv)
	if err != nil {
		return err
	}
	if v == nil {
		if bd.required {
			return ErrNoneNotAllowed
		}
		b.assign(instance, bd, bd.zero)
		return nil
	}
	if !assignable(v, bd.target) {
		return fmt.Errorf("%w: got %T, want %s", ErrTypeMismatch, v, bd.target)
	}
	b.assign(instance, bd, v)
	return nil
}

func (b *batch) collectLink(raw *config.Node, instance any, bd binding) error {
	if raw.IsNone() {
		if bd.required {
			return ErrNoneNotAllowed
		}
		b.assign(instance, bd, nil)
		return nil
	}
	if raw.Kind != config.KindScalar {
		return fmt.Errorf("%w: module reference must be a name, got %s", ErrTypeMismatch, raw.Kind)
	}
	if b.provider == nil {
		return ErrNoProvider
	}
	m, ok := b.provider.ProvideModule(raw.Value, bd.target)
	if !ok {
		return fmt.Errorf("%w: %q as %s", ErrUnknownModule, raw.Value, bd.target)
	}
	if !assignable(m, bd.target) {
		return fmt.Errorf("%w: module %q is %T, want %s", ErrTypeMismatch, raw.Value, m, bd.target)
	}
	b.assign(instance, bd, m)
	return nil
}

func (b *batch) collectSection(raw *config.Node, instance any, bd binding) error {
	if raw.IsNone() {
		if bd.required {
			return ErrNoneNotAllowed
		}
		b.assign(instance, bd, nil)
		return nil
	}
	if raw.Kind != config.KindObject {
		return fmt.Errorf("%w: section must be an object, got %s", ErrTypeMismatch, raw.Kind)
	}
	nested, err := b.instantiate(bd.target)
	if err != nil {
		return err
	}
	if err := b.collect(raw, nested, bd.nested); err != nil {
		return err
	}
	b.assign(instance, bd, nested)
	return nil
}

func (b *batch) instantiate(t reflect.Type) (any, error) {
	r := b.linker.resolver
	if r != nil && r.Registered(t) {
		return r.Resolve(b.ctx, t)
	}
	return reflect.New(t.Elem()).Interface(), nil
}

func (b *batch) assign(instance any, bd binding, value any) {
	b.pending = append(b.pending, func() { bd.assign(instance, value) })
}

func assignable(v any, target reflect.Type) bool {
	return reflect.TypeOf(v).AssignableTo(target)
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
