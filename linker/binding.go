package linker

import (
	"reflect"
)

type bindingKind int

const (
	kindValue bindingKind = iota
	kindLink
	kindSection
)

type binding struct {
	kind       bindingKind
	field      string
	key        string
	target     reflect.Type
	required   bool
	hasDefault bool
	def        any
	zero       any
	assign     func(instance, value any)
	nested     *Spec
}

// Binding maps one configuration key onto a field of *T.
type Binding[T any] struct {
	b binding
}

// Optional marks the binding as optional: an absent key leaves the field
// untouched and "none" resets it to its zero value. On a first bind the
// field therefore keeps its constructed value; when an instance is bound
// again it keeps the value of the previous bind.
func (b Binding[T]) Optional() Binding[T] {
	b.b.required = false
	return b
}

// Value binds key to a field of type V.
func Value[T, V any](field, key string, set func(t *T, v V)) Binding[T] {
	var zero V
	return Binding[T]{b: binding{
		kind:     kindValue,
		field:    field,
		key:      key,
		target:   reflect.TypeFor[V](),
		required: true,
		zero:     zero,
		assign: func(instance, value any) {
			v, _ := value.(V)
			set(instance.(*T), v)
		},
	}}
}

// ValueOr binds key to a field of type V, using def when the key is absent.
func ValueOr[T, V any](field, key string, def V, set func(t *T, v V)) Binding[T] {
	b := Value(field, key, set)
	b.b.required = false
	b.b.hasDefault = true
	b.b.def = def
	return b
}

// Link binds key, holding a module name, to the live module *M resolved
// through the ModuleProvider.
func Link[T, M any](field, key string, set func(t *T, m *M)) Binding[T] {
	return Binding[T]{b: binding{
		kind:     kindLink,
		field:    field,
		key:      key,
		target:   reflect.TypeFor[*M](),
		required: true,
		assign: func(instance, value any) {
			m, _ := value.(*M)
			set(instance.(*T), m)
		},
	}}
}

// Section binds the configuration object at key to a nested *S, itself
// bound with bindings. The nested instance comes from the registry when *S
// is registered and is freshly allocated otherwise.
func Section[T, S any](field, key string, set func(t *T, s *S), bindings ...Binding[S]) Binding[T] {
	return Binding[T]{b: binding{
		kind:     kindSection,
		field:    field,
		key:      key,
		target:   reflect.TypeFor[*S](),
		required: true,
		nested:   NewSpec(bindings...),
		assign: func(instance, value any) {
			s, _ := value.(*S)
			set(instance.(*T), s)
		},
	}}
}

// Spec is the complete binding description for one owner type.
type Spec struct {
	owner    reflect.Type
	bindings []binding
}

// NewSpec collects the bindings for *T.
func NewSpec[T any](bindings ...Binding[T]) *Spec {
	s := &Spec{owner: reflect.TypeFor[*T]()}
	for _, b := range bindings {
		s.bindings = append(s.bindings, b.b)
	}
	return s
}

// Owner returns *T for a Spec built by NewSpec[T].
func (s *Spec) Owner() reflect.Type { return s.owner }

func (s *Spec) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// Keys lists the configuration keys in declaration order.
func (s *Spec) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.bindings))
	for _, b := range s.bindings {
		keys = append(keys, b.key)
	}
	return keys
}
