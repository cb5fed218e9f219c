package livestorage

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnlyArea is returned when application code writes to managed.
	ErrReadOnlyArea = errors.New("livestorage: area is read-only")
	// ErrUnknownArea indicates an area outside sync, local, managed.
	ErrUnknownArea = errors.New("livestorage: unknown area")
	ErrNilHost     = errors.New("livestorage: host is required")
	ErrNilListener = errors.New("livestorage: listener is required")
	// ErrClosed is returned by operations issued after Close.
	ErrClosed = errors.New("livestorage: storage is closed")
)

// AreaError reports a rejected view operation.
type AreaError struct {
	Op   string
	Area Area
	Key  string
	Err  error
}

func (e *AreaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("livestorage: %s %s/%s: %v", e.Op, e.Area, e.Key, e.Err)
}

func (e *AreaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LoadError reports a failed fetch for a single area during Load.
type LoadError struct {
	Area Area
	Err  error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("fetch %s: %v", e.Area, e.Err)
}

func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorInfo describes the host call that failed.
type ErrorInfo struct {
	Action   string
	Area     Area
	Key      string
	Value    any
	HasValue bool
	Err      error
}

// ErrorHandler receives failures of forwarded host writes. It must not panic.
type ErrorHandler func(message string, info ErrorInfo)

const (
	ActionSet    = "set"
	ActionRemove = "remove"
)
