// Package buf implements the typed-slice operations shared by the backend
// and element layers: allocation, copying, gathering and stacking of the
// closed set of supported array payload types.
//
// Array payloads travel through the engine as plain typed Go slices
// ([]float64, []float32, []int64, []int32, []uint8, []bool, []string)
// carried in an `any`. This package is the single owner of the exhaustive
// type switches over that set.
package buf

import (
	"fmt"

	"github.com/annbed/annbed/backend"
)

// Alloc returns a zero-valued slice of n elements of the given dtype.
func Alloc(dt backend.DType, n int) (any, error) {
	switch dt {
	case backend.DTypeFloat64:
		return make([]float64, n), nil
	case backend.DTypeFloat32:
		return make([]float32, n), nil
	case backend.DTypeInt64:
		return make([]int64, n), nil
	case backend.DTypeInt32:
		return make([]int32, n), nil
	case backend.DTypeUint8:
		return make([]uint8, n), nil
	case backend.DTypeBool:
		return make([]bool, n), nil
	case backend.DTypeString:
		return make([]string, n), nil
	default:
		return nil, fmt.Errorf("buf: cannot allocate dtype %s", dt)
	}
}

// Len returns the element count of a typed slice, or -1 for unsupported
// values.
func Len(v any) int {
	switch s := v.(type) {
	case []float64:
		return len(s)
	case []float32:
		return len(s)
	case []int64:
		return len(s)
	case []int32:
		return len(s)
	case []uint8:
		return len(s)
	case []bool:
		return len(s)
	case []string:
		return len(s)
	default:
		return -1
	}
}

// Clone returns a copy of a typed slice.
func Clone(v any) any {
	switch s := v.(type) {
	case []float64:
		return clone(s)
	case []float32:
		return clone(s)
	case []int64:
		return clone(s)
	case []int32:
		return clone(s)
	case []uint8:
		return clone(s)
	case []bool:
		return clone(s)
	case []string:
		return clone(s)
	default:
		return nil
	}
}

// Slice returns a copy of v[start:stop].
func Slice(v any, start, stop int) any {
	switch s := v.(type) {
	case []float64:
		return clone(s[start:stop])
	case []float32:
		return clone(s[start:stop])
	case []int64:
		return clone(s[start:stop])
	case []int32:
		return clone(s[start:stop])
	case []uint8:
		return clone(s[start:stop])
	case []bool:
		return clone(s[start:stop])
	case []string:
		return clone(s[start:stop])
	default:
		return nil
	}
}

// Copy copies n elements from src[srcOff:] into dst[dstOff:]. The two
// slices must hold the same dtype.
func Copy(dst any, dstOff int, src any, srcOff, n int) error {
	switch d := dst.(type) {
	case []float64:
		return cp(d, dstOff, src, srcOff, n)
	case []float32:
		return cp(d, dstOff, src, srcOff, n)
	case []int64:
		return cp(d, dstOff, src, srcOff, n)
	case []int32:
		return cp(d, dstOff, src, srcOff, n)
	case []uint8:
		return cp(d, dstOff, src, srcOff, n)
	case []bool:
		return cp(d, dstOff, src, srcOff, n)
	case []string:
		return cp(d, dstOff, src, srcOff, n)
	default:
		return fmt.Errorf("buf: unsupported destination type %T", dst)
	}
}

// Gather returns a new slice holding v[idx[0]], v[idx[1]], ... in order.
// Indices must already be validated against len(v).
func Gather(v any, idx []int) any {
	switch s := v.(type) {
	case []float64:
		return gather(s, idx)
	case []float32:
		return gather(s, idx)
	case []int64:
		return gather(s, idx)
	case []int32:
		return gather(s, idx)
	case []uint8:
		return gather(s, idx)
	case []bool:
		return gather(s, idx)
	case []string:
		return gather(s, idx)
	default:
		return nil
	}
}

// Concat stacks typed slices of one dtype into a single slice.
func Concat(vs ...any) (any, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("buf: concat of zero slices")
	}
	dt := backend.DTypeOf(vs[0])
	total := 0
	for _, v := range vs {
		if backend.DTypeOf(v) != dt {
			return nil, fmt.Errorf("buf: concat dtype mismatch: %s vs %s", dt, backend.DTypeOf(v))
		}
		total += Len(v)
	}
	out, err := Alloc(dt, total)
	if err != nil {
		return nil, err
	}
	off := 0
	for _, v := range vs {
		n := Len(v)
		if err := Copy(out, off, v, 0, n); err != nil {
			return nil, err
		}
		off += n
	}
	return out, nil
}

// Equal reports whether two typed slices hold the same dtype, length and
// element values.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case []float64:
		y, ok := b.([]float64)
		return ok && eq(x, y)
	case []float32:
		y, ok := b.([]float32)
		return ok && eq(x, y)
	case []int64:
		y, ok := b.([]int64)
		return ok && eq(x, y)
	case []int32:
		y, ok := b.([]int32)
		return ok && eq(x, y)
	case []uint8:
		y, ok := b.([]uint8)
		return ok && eq(x, y)
	case []bool:
		y, ok := b.([]bool)
		return ok && eq(x, y)
	case []string:
		y, ok := b.([]string)
		return ok && eq(x, y)
	default:
		return false
	}
}

// Fill sets v[start:stop] to the given scalar. The scalar's type must match
// the slice's element type (int64 and float64 scalars fill the narrower
// numeric dtypes too).
func Fill(v any, start, stop int, scalar any) error {
	switch s := v.(type) {
	case []float64:
		f, ok := toFloat(scalar)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, f)
	case []float32:
		f, ok := toFloat(scalar)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, float32(f))
	case []int64:
		i, ok := toInt(scalar)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, i)
	case []int32:
		i, ok := toInt(scalar)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, int32(i))
	case []uint8:
		i, ok := toInt(scalar)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, uint8(i))
	case []bool:
		b, ok := scalar.(bool)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, b)
	case []string:
		str, ok := scalar.(string)
		if !ok {
			return fillTypeError(v, scalar)
		}
		fill(s, start, stop, str)
	default:
		return fmt.Errorf("buf: unsupported slice type %T", v)
	}
	return nil
}

func fillTypeError(v, scalar any) error {
	return fmt.Errorf("buf: cannot fill %T with %T", v, scalar)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	default:
		return 0, false
	}
}

func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func cp[T any](dst []T, dstOff int, src any, srcOff, n int) error {
	s, ok := src.([]T)
	if !ok {
		return fmt.Errorf("buf: copy type mismatch: %T vs %T", dst, src)
	}
	if srcOff+n > len(s) || dstOff+n > len(dst) {
		return fmt.Errorf("buf: copy out of bounds (dst %d+%d/%d, src %d+%d/%d)",
			dstOff, n, len(dst), srcOff, n, len(s))
	}
	copy(dst[dstOff:dstOff+n], s[srcOff:srcOff+n])
	return nil
}

func gather[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

func eq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fill[T any](s []T, start, stop int, v T) {
	for i := start; i < stop; i++ {
		s[i] = v
	}
}
