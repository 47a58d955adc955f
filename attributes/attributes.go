// Package attributes provides a keyed bag of arbitrary values that can be
// attached to descriptors, registries and tree nodes.
package attributes

import (
	"maps"
	"reflect"
	"slices"
	"sync"
)

// Store is a concurrency-safe string-keyed attribute bag. The zero value is
// ready to use.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Get returns the value stored under key and whether it was present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key. Setting a nil value removes the key; typed
// nil pointers, maps, slices, channels and funcs count as nil.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isNil(value) {
		delete(s.values, key)
		return
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

// Delete removes key. It is equivalent to Set(key, nil).
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// Clone returns an independent copy of the store. Values are copied
// shallowly.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Store{values: maps.Clone(s.values)}
}

func (s *Store) Delete(key string) {
	s.Set(key, nil)
}

func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Range calls fn for every entry in key order until fn returns false.
// The store may be modified from fn.
func (s *Store) Range(fn func(key string, value any) bool) {
	for _, k := range s.Keys() {
		v, ok := s.Get(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// Value returns the value stored under key when it is present and of type T.
func Value[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
