package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVersion matches every *InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidCollection matches every *InvalidCollectionError.
	ErrInvalidCollection = errors.New("invalid collection")
)

// InvalidVersionError reports a version outside the known set.
type InvalidVersionError struct {
	Version string
}

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Version)
}

// Is lets errors.Is match ErrInvalidVersion.
func (e *InvalidVersionError) Is(target error) bool {
	return target == ErrInvalidVersion
}

// InvalidCollectionError reports a collection the version does not expose.
type InvalidCollectionError struct {
	Collection string
	Version    string
}

// Error implements the error interface.
func (e *InvalidCollectionError) Error() string {
	return fmt.Sprintf("invalid collection %q for version %q", e.Collection, e.Version)
}

// Is lets errors.Is match ErrInvalidCollection.
func (e *InvalidCollectionError) Is(target error) bool {
	return target == ErrInvalidCollection
}
