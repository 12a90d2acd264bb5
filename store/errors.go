package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNilBackingStore is returned by New without a BackingStore.
	ErrNilBackingStore = errors.New("store: nil backing store")
	// ErrNilDocument is returned by Save and Delete for a nil document.
	ErrNilDocument = errors.New("store: nil document")
	// ErrInvalidRef is matched by every *RefError.
	ErrInvalidRef = errors.New("store: invalid ref")
)

// ConfigError reports an invalid Options field.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// RefError reports a malformed Ref.
type RefError struct {
	Input  string
	Reason string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("store: invalid ref %q: %s", e.Input, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRef) hold.
func (e *RefError) Is(target error) bool { return target == ErrInvalidRef }
