// Package registry implements the managed-object registry: it constructs,
// caches and wires component instances from registration-time descriptors.
//
// Singletons are published to the cache right after construction and before
// their own fields are wired, so mutually referencing types resolve without
// infinite recursion. While the registry is unsealed (the single-threaded
// build phase) any caller may observe such a partially wired instance. After
// Seal, callers outside the resolution chain that is building an instance
// wait until it is fully wired.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/modgraph/attributes"
)

// Registry is the bean container.
type Registry struct {
	name   string
	logger Logger
	attrs  *attributes.Store

	mu          sync.Mutex
	descriptors map[reflect.Type]*Descriptor
	aliases     map[reflect.Type]reflect.Type
	instances   map[reflect.Type]*entry
	sealed      bool

	created   atomic.Int64
	sessionID atomic.Uint64
}

// entry tracks one singleton from construction to completion.
type entry struct {
	typ   reflect.Type
	ready chan struct{}
	inst  any
	err   error
	owner *session
	done  bool
	// leaked is set once the partial instance was handed to a cycle
	// member in the owning session.
	leaked bool
}

// session is one top-level resolution chain. It is carried in the context
// so that nested Resolve calls from constructors stay in the same chain.
type session struct {
	id        uint64
	stack     []reflect.Type
	waitingOn *session
	// building holds the singletons this session is constructing, outermost
	// first. deferred holds finished singletons that still reference a
	// partial instance; they complete or fail together with it.
	building []*entry
	deferred []*entry
}

func (s *session) push(t reflect.Type) func() {
	s.stack = append(s.stack, t)
	return func() { s.stack = s.stack[:len(s.stack)-1] }
}

type sessionKey struct{}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithName(name string) Option {
	return func(r *Registry) { r.name = name }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		name:        "default",
		logger:      noopLogger{},
		attrs:       attributes.New(),
		descriptors: make(map[reflect.Type]*Descriptor),
		aliases:     make(map[reflect.Type]reflect.Type),
		instances:   make(map[reflect.Type]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Name() string { return r.name }

// Attributes returns the registry-wide attribute store.
func (r *Registry) Attributes() *attributes.Store { return r.attrs }

// Register adds descriptors. Registering a type twice fails with
// ErrDuplicateRegistration; earlier descriptors in the same call stay
// registered.
func (r *Registry) Register(descriptors ...*Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range descriptors {
		if d == nil {
			return ErrNilDescriptor
		}
		if _, exists := r.descriptors[d.typ]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRegistration, d.typ)
		}
		r.descriptors[d.typ] = d
		if d.prebuilt != nil {
			e := &entry{typ: d.typ, ready: make(chan struct{}), inst: d.prebuilt, done: true}
			close(e.ready)
			r.instances[d.typ] = e
		}
		r.logger.Debug("Registered managed type", "registry", r.name, "type", d.typ.String(), "scope", d.scope.String())
	}
	return nil
}

// Provide registers an already constructed singleton keyed by *T.
func Provide[T any](r *Registry, instance *T) error {
	if instance == nil {
		return fmt.Errorf("%w: %s", ErrConstructorReturnedNil, reflect.TypeFor[*T]())
	}
	return r.Register(prebuilt(reflect.TypeFor[*T](), instance))
}

// ProvideAs registers an already constructed singleton keyed by the
// interface type I.
func ProvideAs[I any](r *Registry, instance I) error {
	key := reflect.TypeFor[I]()
	if key.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %s", ErrNotInterface, key)
	}
	if any(instance) == nil {
		return fmt.Errorf("%w: %s", ErrConstructorReturnedNil, key)
	}
	return r.Register(prebuilt(key, instance))
}

func prebuilt(key reflect.Type, instance any) *Descriptor {
	return &Descriptor{
		typ:       key,
		scope:     Singleton,
		construct: func(context.Context) (any, error) { return instance, nil },
		attrs:     attributes.New(),
		prebuilt:  instance,
	}
}

// Bind routes requests for interface I to the registered implementation *T.
// A later Bind for the same interface overrides the earlier one.
func Bind[I, T any](r *Registry) error {
	iface, impl := reflect.TypeFor[I](), reflect.TypeFor[*T]()
	if iface.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %s", ErrNotInterface, iface)
	}
	if !impl.Implements(iface) {
		return fmt.Errorf("%w: %s does not implement %s", ErrNotAssignable, impl, iface)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.aliases[iface]; ok && prev != impl {
		r.logger.Debug("Overriding interface binding", "interface", iface.String(), "previous", prev.String(), "implementation", impl.String())
	}
	r.aliases[iface] = impl
	return nil
}

// Registered reports whether t, or an alias of t, has a descriptor.
func (r *Registry) Registered(t reflect.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.descriptorLocked(t)
	return ok
}

// Descriptor returns the descriptor serving t.
func (r *Registry) Descriptor(t reflect.Type) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.descriptorLocked(t)
}

func (r *Registry) descriptorLocked(t reflect.Type) (*Descriptor, bool) {
	seen := 0
	for {
		if d, ok := r.descriptors[t]; ok {
			return d, true
		}
		next, ok := r.aliases[t]
		if !ok || seen > len(r.aliases) {
			return nil, false
		}
		t = next
		seen++
	}
}

// Seal ends the build phase. From now on partially wired singletons are
// only visible to the resolution chain that is wiring them.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Get resolves the managed *T.
func Get[T any](ctx context.Context, r Resolver) (*T, error) {
	v, err := r.Resolve(ctx, reflect.TypeFor[*T]())
	if err != nil {
		return nil, err
	}
	t, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: want %s, got %T", ErrUnexpectedInstanceType, reflect.TypeFor[*T](), v)
	}
	return t, nil
}

// Lookup resolves the managed implementation of interface I.
func Lookup[I any](ctx context.Context, r Resolver) (I, error) {
	var zero I
	v, err := r.Resolve(ctx, reflect.TypeFor[I]())
	if err != nil {
		return zero, err
	}
	i, ok := v.(I)
	if !ok {
		return zero, fmt.Errorf("%w: want %s, got %T", ErrUnexpectedInstanceType, reflect.TypeFor[I](), v)
	}
	return i, nil
}

// Resolve returns the instance registered for t, constructing and wiring it
// when needed.
func (r *Registry) Resolve(ctx context.Context, t reflect.Type) (any, error) {
	sess, ok := ctx.Value(sessionKey{}).(*session)
	if !ok {
		sess = &session{id: r.sessionID.Add(1)}
		ctx = context.WithValue(ctx, sessionKey{}, sess)
	}
	var requester reflect.Type
	if n := len(sess.stack); n > 0 {
		requester = sess.stack[n-1]
	}
	return r.resolve(ctx, sess, t, requester)
}

func (r *Registry) resolve(ctx context.Context, sess *session, t, requester reflect.Type) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	d, ok := r.descriptorLocked(t)
	if !ok {
		r.mu.Unlock()
		return nil, &UnregisteredDependencyError{Requester: requester, Missing: t}
	}

	if d.scope == Transient {
		r.mu.Unlock()
		for _, onStack := range sess.stack {
			if onStack == d.typ {
				return nil, fmt.Errorf("%w: %s", ErrCircularDependency, chain(sess.stack, d.typ))
			}
		}
		return r.build(ctx, sess, d)
	}

	if e, exists := r.instances[d.typ]; exists {
		return r.await(ctx, sess, d, e)
	}

	e := &entry{typ: d.typ, ready: make(chan struct{}), owner: sess}
	r.instances[d.typ] = e
	sess.building = append(sess.building, e)
	r.mu.Unlock()

	inst, err := r.constructSingleton(ctx, sess, d, e)
	sess.building = sess.building[:len(sess.building)-1]
	if err != nil {
		r.evict(e, err)
		for _, p := range sess.deferred {
			r.evict(p, err)
		}
		sess.deferred = nil
		return nil, err
	}

	if r.cycleOpen(sess) {
		sess.deferred = append(sess.deferred, e)
		return inst, nil
	}
	r.complete(e)
	for _, p := range sess.deferred {
		r.complete(p)
	}
	sess.deferred = nil
	return inst, nil
}

// cycleOpen reports whether a singleton still under construction in sess
// handed out its partial instance.
func (r *Registry) cycleOpen(sess *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range sess.building {
		if b.leaked {
			return true
		}
	}
	return false
}

func (r *Registry) complete(e *entry) {
	r.mu.Lock()
	e.done = true
	e.owner = nil
	r.mu.Unlock()
	close(e.ready)
}

// await handles a request for a singleton that already has an entry. It is
// called with r.mu held and releases it.
func (r *Registry) await(ctx context.Context, sess *session, d *Descriptor, e *entry) (any, error) {
	switch {
	case e.done:
		r.mu.Unlock()
		return e.inst, nil
	case e.owner == sess && e.inst != nil:
		// Cycle within one chain: hand out the published instance.
		e.leaked = true
		r.mu.Unlock()
		return e.inst, nil
	case e.owner == sess:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, chain(sess.stack, d.typ))
	case !r.sealed && e.inst != nil:
		r.mu.Unlock()
		return e.inst, nil
	}

	if r.waitsOnLocked(e.owner, sess) {
		// The owner is (transitively) waiting on us: waiting would deadlock.
		inst := e.inst
		r.mu.Unlock()
		if inst != nil {
			return inst, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrCircularDependency, d.typ)
	}
	sess.waitingOn = e.owner
	r.mu.Unlock()

	var err error
	select {
	case <-e.ready:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	sess.waitingOn = nil
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.inst, nil
}

// waitsOnLocked reports whether from transitively waits on to.
func (r *Registry) waitsOnLocked(from, to *session) bool {
	for s, hops := from, 0; s != nil && hops <= int(r.sessionID.Load()); s, hops = s.waitingOn, hops+1 {
		if s == to {
			return true
		}
	}
	return false
}

func (r *Registry) constructSingleton(ctx context.Context, sess *session, d *Descriptor, e *entry) (any, error) {
	defer sess.push(d.typ)()
	inst, err := d.construct(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstructionFailed, d.typ, err)
	}
	r.created.Add(1)

	// Publish before wiring.
	r.mu.Lock()
	e.inst = inst
	r.mu.Unlock()
	r.logger.Debug("Published singleton", "type", d.typ.String(), "session", sess.id)

	if err := r.wire(ctx, sess, d, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *Registry) build(ctx context.Context, sess *session, d *Descriptor) (any, error) {
	defer sess.push(d.typ)()
	inst, err := d.construct(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstructionFailed, d.typ, err)
	}
	r.created.Add(1)
	if err := r.wire(ctx, sess, d, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *Registry) wire(ctx context.Context, sess *session, d *Descriptor, inst any) error {
	if d.prebuilt != nil {
		return nil
	}
	for _, inj := range d.injections {
		dep, err := r.resolve(ctx, sess, inj.target, d.typ)
		if err != nil {
			return fmt.Errorf("wire %s.%s: %w", d.typ, inj.field, err)
		}
		inj.set(inst, dep)
	}
	for i, hook := range d.postConstruct {
		if err := hook(ctx, inst); err != nil {
			return fmt.Errorf("%w: %s hook %d: %w", ErrPostConstructFailed, d.typ, i, err)
		}
	}
	return nil
}

func (r *Registry) evict(e *entry, err error) {
	r.mu.Lock()
	if r.instances[e.typ] == e {
		delete(r.instances, e.typ)
	}
	e.err = err
	e.owner = nil
	r.mu.Unlock()
	close(e.ready)
	r.logger.Debug("Evicted singleton after failure", "type", e.typ.String(), "error", err)
}

// Warm eagerly constructs every registered singleton that has not been
// built yet, concurrently. Unrelated types are constructed in parallel.
func (r *Registry) Warm(ctx context.Context) error {
	r.mu.Lock()
	var pending []reflect.Type
	for t, d := range r.descriptors {
		if d.scope != Singleton {
			continue
		}
		if _, exists := r.instances[t]; !exists {
			pending = append(pending, t)
		}
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, t := range pending {
		g.Go(func() error {
			_, err := r.Resolve(gctx, t)
			return err
		})
	}
	return g.Wait()
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Registered int
	Aliases    int
	Singletons int
	Created    int64
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	singletons := 0
	for _, e := range r.instances {
		if e.done {
			singletons++
		}
	}
	return Stats{
		Registered: len(r.descriptors),
		Aliases:    len(r.aliases),
		Singletons: singletons,
		Created:    r.created.Load(),
	}
}

func chain(stack []reflect.Type, last reflect.Type) string {
	s := ""
	for _, t := range stack {
		s += t.String() + " -> "
	}
	return s + last.String()
}

// IsUnregistered reports whether err was caused by a missing registration.
func IsUnregistered(err error) bool {
	var ue *UnregisteredDependencyError
	return errors.As(err, &ue)
}
