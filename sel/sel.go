// Package sel computes axis selections: ordered sequences of original index
// positions produced from boolean masks, integer index lists or strided
// ranges. A Selection holds index references only, never data.
package sel

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrOutOfRange is returned when a selection references an index
	// outside the axis it is resolved against.
	ErrOutOfRange = errors.New("sel: index out of range")

	// ErrMaskLength is returned when a boolean mask's length differs from
	// the axis length it is resolved against.
	ErrMaskLength = errors.New("sel: mask length mismatch")
)

// IndexError carries the offending index of an out-of-range selection.
type IndexError struct {
	Index   int
	AxisLen int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("sel: index %d out of range for axis of length %d", e.Index, e.AxisLen)
}

func (e *IndexError) Unwrap() error { return ErrOutOfRange }

// Selection describes a subset or permutation along one axis. Resolve
// validates the selection against a concrete axis length and returns the
// ordered original-index positions it covers.
type Selection interface {
	// Resolve returns the selected indices for an axis of length n.
	// The full selection is validated before any index is returned.
	Resolve(n int) ([]int, error)
}

type maskSel struct {
	bits *roaring.Bitmap
	n    int
}

// Mask builds a selection from a boolean mask. The mask's length must equal
// the axis length at resolve time; selected positions keep their original
// order.
func Mask(mask []bool) Selection {
	bits := roaring.New()
	for i, b := range mask {
		if b {
			bits.Add(uint32(i))
		}
	}
	return &maskSel{bits: bits, n: len(mask)}
}

func (s *maskSel) Resolve(n int) ([]int, error) {
	if s.n != n {
		return nil, fmt.Errorf("%w: mask of length %d for axis of length %d", ErrMaskLength, s.n, n)
	}
	out := make([]int, 0, s.bits.GetCardinality())
	it := s.bits.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out, nil
}

type indexSel struct {
	idx []int
}

// Indices builds a selection from explicit index positions. Duplicates and
// reordering are permitted; values are bounds-checked at resolve time.
func Indices(idx []int) Selection {
	return &indexSel{idx: append([]int(nil), idx...)}
}

func (s *indexSel) Resolve(n int) ([]int, error) {
	for _, i := range s.idx {
		if i < 0 || i >= n {
			return nil, &IndexError{Index: i, AxisLen: n}
		}
	}
	// Always non-nil: an empty index list selects nothing, it does not
	// leave the axis untouched.
	out := make([]int, len(s.idx))
	copy(out, s.idx)
	return out, nil
}

type rangeSel struct {
	start, stop, step int
}

// Range builds a selection covering [start, stop) with the given stride.
// step must be positive; stop is clamped to the axis length.
func Range(start, stop, step int) Selection {
	return &rangeSel{start: start, stop: stop, step: step}
}

func (s *rangeSel) Resolve(n int) ([]int, error) {
	if s.step <= 0 {
		return nil, fmt.Errorf("sel: non-positive step %d", s.step)
	}
	if s.start < 0 || s.start > n {
		return nil, &IndexError{Index: s.start, AxisLen: n}
	}
	stop := s.stop
	if stop > n {
		stop = n
	}
	out := make([]int, 0)
	for i := s.start; i < stop; i += s.step {
		out = append(out, i)
	}
	return out, nil
}

type allSel struct{}

// All selects every position of the axis in original order.
func All() Selection { return allSel{} }

func (allSel) Resolve(n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out, nil
}

// IsIdentity reports whether idx is the full identity selection for an axis
// of length n, i.e. 0..n-1 in order.
func IsIdentity(idx []int, n int) bool {
	if len(idx) != n {
		return false
	}
	for i, v := range idx {
		if v != i {
			return false
		}
	}
	return true
}
