package linker

import (
	"errors"
	"fmt"
	"reflect"
)

// Static errors for the linker package.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrMissingKey      = errors.New("required configuration key is missing")
	ErrTypeMismatch    = errors.New("configuration value does not match field type")
	ErrNoneNotAllowed  = errors.New("required configuration key is set to none")
	ErrUnknownModule   = errors.New("linked module not found")
	ErrNoProvider      = errors.New("no module provider available")
	ErrOwnerMismatch   = errors.New("instance type does not match binding spec")
	ErrNoConverter     = errors.New("no script converter for expression value")
	ErrUnsupportedType = errors.New("unsupported field type")
)

// ConfigurationError reports a binding failure for one field. It matches
// ErrConfiguration with errors.Is and unwraps to the underlying cause.
type ConfigurationError struct {
	Owner  reflect.Type
	Field  string
	Key    string
	Module string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s (key %q): %v", ErrConfiguration, e.Owner, e.Field, e.Key, e.Err)
	if e.Module != "" {
		msg += "; module name: " + e.Module
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// WithModule records the owning module name on every ConfigurationError in
// err's chain and returns err.
func WithModule(err error, module string) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) && ce.Module == "" {
		ce.Module = module
	}
	return err
}
