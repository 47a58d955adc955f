package registry

import (
	"context"
	"reflect"
)

// Logger is the logging surface the registry needs. Any modgraph.Logger or
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Resolver resolves managed instances by type. *Registry implements it;
// consumers such as the configuration linker depend on this interface.
type Resolver interface {
	Resolve(ctx context.Context, t reflect.Type) (any, error)
	Registered(t reflect.Type) bool
}

// Scope controls instance caching.
type Scope int

const (
	// Singleton instances are constructed once and cached for the registry's
	// lifetime.
	Singleton Scope = iota
	// Transient instances are constructed on every request.
	Transient
)

func (s Scope) String() string {
	switch s {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}
