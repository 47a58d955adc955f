package feeders

import (
	"errors"
	"fmt"
)

// Static errors for the feeders package.
var (
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
	ErrRootNotObject     = errors.New("configuration root must be an object")
	ErrUnsupportedValue  = errors.New("unsupported configuration value")
)

func wrapReadError(path string, err error) error {
	return fmt.Errorf("read %s: %w", path, err)
}

func wrapParseError(format, path string, err error) error {
	return fmt.Errorf("parse %s document %s: %w", format, path, err)
}

func wrapValueError(path string, value any) error {
	return fmt.Errorf("%w at %s: %T", ErrUnsupportedValue, path, value)
}
