package annbed

import (
	"errors"
	"fmt"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
	"github.com/annbed/annbed/frame"
	"github.com/annbed/annbed/sel"
)

var (
	// ErrNotFound is returned when a named element, collection member or
	// backend child does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBackendIO wraps a backend failure. The engine never retries;
	// the backend's own error is reachable via errors.Unwrap.
	ErrBackendIO = errors.New("backend i/o error")

	// ErrSchemaViolation is returned on shape or dtype mismatches when
	// inserting or writing an element.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrAxisLengthMismatch is returned when an element's size along its
	// bound axis disagrees with the container's axis length.
	ErrAxisLengthMismatch = errors.New("axis length mismatch")

	// ErrIndexOutOfRange is returned when a selection references an
	// index at or beyond the axis length.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrShapeMismatch is returned when concatenation inputs disagree on
	// non-join-axis length, element kind or dtype.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrClosed is returned when operating on a closed container.
	ErrClosed = errors.New("container is closed")
)

// AxisLengthError reports the offending collection, element and sizes of
// an axis-length violation.
type AxisLengthError struct {
	Collection string
	Element    string
	Axis       Axis
	Want       int
	Got        int
}

func (e *AxisLengthError) Error() string {
	return fmt.Sprintf("axis length mismatch: %s[%q] has %d along %s, container has %d",
		e.Collection, e.Element, e.Got, e.Axis, e.Want)
}

func (e *AxisLengthError) Unwrap() error { return ErrAxisLengthMismatch }

// ShapeError reports a concatenation shape disagreement.
type ShapeError struct {
	Collection string
	Element    string
	Detail     string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch: %s[%q]: %s", e.Collection, e.Element, e.Detail)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// translateError normalizes subpackage errors at the public boundary so
// callers match on the error kinds of this package.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrSchemaViolation),
		errors.Is(err, ErrAxisLengthMismatch),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrShapeMismatch),
		errors.Is(err, ErrBackendIO):
		return err
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, element.ErrNotFound),
		errors.Is(err, frame.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, sel.ErrOutOfRange), errors.Is(err, sel.ErrMaskLength):
		return fmt.Errorf("%w: %w", ErrIndexOutOfRange, err)
	case errors.Is(err, element.ErrSchema), errors.Is(err, frame.ErrTypeMismatch):
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	case errors.Is(err, frame.ErrLengthMismatch):
		return fmt.Errorf("%w: %w", ErrAxisLengthMismatch, err)
	case errors.Is(err, backend.ErrAttrMissing), errors.Is(err, backend.ErrExists):
		return fmt.Errorf("%w: %w", ErrBackendIO, err)
	default:
		return err
	}
}

// translateIO wraps an error coming straight from a backend call.
func translateIO(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendIO, err)
}
