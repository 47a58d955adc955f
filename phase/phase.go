// Package phase implements the execution phase gate: a process-wide
// bootstrap-stage value that only holders of an authorized token may move.
//
// The gate is a security checkpoint, not a state machine. Any authorized
// holder may set any phase at any time; no ordering between phases is
// enforced.
package phase

import (
	"errors"
	"fmt"
	"sync"
)

// Phase names a bootstrap stage. The set is open: any non-empty string is a
// valid phase.
type Phase string

// Well-known phases, in the order a typical bootstrap visits them.
const (
	NotStarted     Phase = "NOT_STARTED"
	Agent          Phase = "AGENT"
	PreLoad        Phase = "PRE_LOAD"
	CoreModules    Phase = "CORE_MODULES"
	Config         Phase = "CONFIG"
	LoadExtensions Phase = "LOAD_EXTENSIONS"
	Start          Phase = "START"
	PostStart      Phase = "POST_START"
	Execute        Phase = "EXECUTE"
)

// Known lists the well-known phases.
func Known() []Phase {
	return []Phase{NotStarted, Agent, PreLoad, CoreModules, Config, LoadExtensions, Start, PostStart, Execute}
}

func (p Phase) String() string { return string(p) }

var (
	ErrUnauthorized = errors.New("caller is not authorized to change the execution phase")
	ErrClosed       = errors.New("phase gate is closed")
	ErrEmptyPhase   = errors.New("phase must not be empty")
)

// Token is a capability handed to components allowed to move the gate.
// Tokens compare by identity; two tokens with the same holder name are
// distinct.
type Token struct {
	holder string
}

// NewToken mints a capability for the named holder. The name is used in
// error messages only.
func NewToken(holder string) *Token {
	return &Token{holder: holder}
}

func (t *Token) String() string {
	if t == nil {
		return "<nil token>"
	}
	return t.holder
}

// ChangeFunc observes phase changes.
type ChangeFunc func(from, to Phase)

// Gate holds the current phase and the allow-list of tokens permitted to
// change it.
type Gate struct {
	// allowed is fixed at construction and read without locking.
	allowed map[*Token]struct{}

	mu        sync.RWMutex
	current   Phase
	closed    bool
	listeners []ChangeFunc
}

// NewGate creates a gate positioned at initial. Only the given tokens may
// call Set. An empty initial phase defaults to NotStarted.
func NewGate(initial Phase, authorized ...*Token) *Gate {
	if initial == "" {
		initial = NotStarted
	}
	allowed := make(map[*Token]struct{}, len(authorized))
	for _, t := range authorized {
		if t != nil {
			allowed[t] = struct{}{}
		}
	}
	return &Gate{allowed: allowed, current: initial}
}

// Current returns the current phase.
func (g *Gate) Current() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Authorized reports whether tok may change the phase.
func (g *Gate) Authorized(tok *Token) bool {
	if tok == nil {
		return false
	}
	_, ok := g.allowed[tok]
	return ok
}

// Set moves the gate to p. An unauthorized token fails with ErrUnauthorized
// and leaves the phase unchanged.
func (g *Gate) Set(tok *Token, p Phase) error {
	if !g.Authorized(tok) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, tok)
	}
	if p == "" {
		return ErrEmptyPhase
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	from := g.current
	g.current = p
	listeners := g.listeners
	g.mu.Unlock()

	if from != p {
		for _, fn := range listeners {
			fn(from, p)
		}
	}
	return nil
}

// Valid reports whether the current phase is one of phases.
func (g *Gate) Valid(phases ...Phase) bool {
	current := g.Current()
	for _, p := range phases {
		if p == current {
			return true
		}
	}
	return false
}

// OnChange registers fn to be called after every phase change. Listeners run
// on the goroutine that called Set, outside the gate's lock.
func (g *Gate) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners[:len(g.listeners):len(g.listeners)], fn)
}

// Close ends the gate's lifetime. The current phase stays readable; further
// Set calls fail with ErrClosed.
func (g *Gate) Close(tok *Token) error {
	if !g.Authorized(tok) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, tok)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *Gate) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}
