package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrIO                 = errors.New("io error")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrCorruptIndex       = errors.New("corrupt index")
	ErrConfigMismatch     = errors.New("index was built with a different embedding configuration")
	ErrProviderTimeout    = errors.New("provider call timed out")
	ErrProvider           = errors.New("provider call failed")
	ErrIndexNotReady      = errors.New("index not ready")
	ErrDuplicateChunk     = errors.New("duplicate chunk id")
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")
	ErrInvalidVector      = errors.New("vector has non-finite components")
)

// Error wraps errors with operation context.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// DimensionError reports a vector whose length differs from the expected one.
func DimensionError(op string, want, got int) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, got)}
}

// VectorError reports the first NaN or infinite component of v, or nil if
// every component is finite.
func VectorError(op string, v []float32) error {
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return &Error{Op: op, Err: fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, x)}
		}
	}
	return nil
}
