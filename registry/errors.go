package registry

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for the registry package.
var (
	ErrNilDescriptor          = errors.New("descriptor is nil")
	ErrDuplicateRegistration  = errors.New("type already registered")
	ErrUnregisteredDependency = errors.New("dependency type not registered")
	ErrCircularDependency     = errors.New("circular dependency detected")
	ErrNotAssignable          = errors.New("implementation does not satisfy interface")
	ErrNotInterface           = errors.New("alias key must be an interface type")
	ErrConstructorReturnedNil = errors.New("constructor returned nil instance")
	ErrUnexpectedInstanceType = errors.New("resolved instance has unexpected type")
	ErrPostConstructFailed    = errors.New("post-construct hook failed")
	ErrConstructionFailed     = errors.New("construction failed")
)

// UnregisteredDependencyError reports a request for a type that was never
// registered. Requester is nil for top-level requests.
type UnregisteredDependencyError struct {
	Requester reflect.Type
	Missing   reflect.Type
}

func (e *UnregisteredDependencyError) Error() string {
	requester := "<root>"
	if e.Requester != nil {
		requester = e.Requester.String()
	}
	return fmt.Sprintf("%s: %s requires %s", ErrUnregisteredDependency, requester, e.Missing)
}

func (e *UnregisteredDependencyError) Is(target error) bool {
	return target == ErrUnregisteredDependency
}
