package modgraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modgraph/linker"
	"github.com/GoCodeAlone/modgraph/phase"
	"github.com/GoCodeAlone/modgraph/registry"
)

// Option configures an Application.
type Option func(*Application) error

var errNilOption = errors.New("option value is nil")

// WithLogger sets the application logger. It is required.
func WithLogger(logger Logger) Option {
	return func(a *Application) error {
		if logger == nil {
			return fmt.Errorf("logger: %w", errNilOption)
		}
		a.logger = logger
		return nil
	}
}

// WithName names the application. The name is the CloudEvents source of
// every emitted event.
func WithName(name string) Option {
	return func(a *Application) error {
		a.name = name
		return nil
	}
}

// WithRegistry makes the application resolve instances from r instead of a
// private registry. Types registered in r take precedence over the defaults.
func WithRegistry(r *registry.Registry) Option {
	return func(a *Application) error {
		if r == nil {
			return fmt.Errorf("registry: %w", errNilOption)
		}
		a.registry = r
		return nil
	}
}

// WithPhaseGate shares a process-wide phase gate. tok must be authorized on
// g for the application to move the phase.
func WithPhaseGate(g *phase.Gate, tok *phase.Token) Option {
	return func(a *Application) error {
		if g == nil {
			return fmt.Errorf("phase gate: %w", errNilOption)
		}
		if !g.Authorized(tok) {
			return fmt.Errorf("phase gate: %w", phase.ErrUnauthorized)
		}
		a.gate, a.token = g, tok
		return nil
	}
}

// WithHookTimeout bounds every lifecycle hook invocation. Zero disables the
// bound.
func WithHookTimeout(d time.Duration) Option {
	return func(a *Application) error {
		if d < 0 {
			return fmt.Errorf("hook timeout %s: must not be negative", d)
		}
		a.hookTimeout = d
		return nil
	}
}

// WithObserver registers an observer for the given event types, or for all
// events when none are given.
func WithObserver(obs Observer, eventTypes ...string) Option {
	return func(a *Application) error {
		if obs == nil {
			return fmt.Errorf("observer: %w", errNilOption)
		}
		a.observers.register(obs, eventTypes...)
		return nil
	}
}

// WithConverter sets the script converter used for expression values.
func WithConverter(conv linker.ScriptConverter) Option {
	return func(a *Application) error {
		if conv == nil {
			return fmt.Errorf("script converter: %w", errNilOption)
		}
		a.converter = conv
		return nil
	}
}

// WithDeserializer sets the element deserializer used for all bindings.
func WithDeserializer(d linker.ElementDeserializer) Option {
	return func(a *Application) error {
		if d == nil {
			return fmt.Errorf("element deserializer: %w", errNilOption)
		}
		a.deserializer = d
		return nil
	}
}
