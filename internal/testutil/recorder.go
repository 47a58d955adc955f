package testutil

import (
	"context"
	"slices"
	"sync"
)

// Recorder collects hook invocations in call order.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recorder) Add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Hook returns a lifecycle hook that records call and returns err.
func Hook[T any](r *Recorder, call string, err error) func(context.Context, *T) error {
	return func(context.Context, *T) error {
		r.Add(call)
		return err
	}
}

func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Count returns how often call was recorded.
func (r *Recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
