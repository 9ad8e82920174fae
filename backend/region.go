package backend

import "fmt"

// Region copy helpers for row-major payloads. The innermost dimension is
// contiguous, so regions are moved one last-dimension run at a time.

func allocZero(dt DType, n int) (any, error) {
	switch dt {
	case DTypeFloat64:
		return make([]float64, n), nil
	case DTypeFloat32:
		return make([]float32, n), nil
	case DTypeInt64:
		return make([]int64, n), nil
	case DTypeInt32:
		return make([]int32, n), nil
	case DTypeUint8:
		return make([]uint8, n), nil
	case DTypeBool:
		return make([]bool, n), nil
	case DTypeString:
		return make([]string, n), nil
	default:
		return nil, fmt.Errorf("backend: cannot allocate dtype %s", dt)
	}
}

func payloadLen(v any) int {
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

func extractRegion(full any, shape []int, ranges []Range) (any, error) {
	switch s := full.(type) {
	case []float64:
		return extract(s, shape, ranges), nil
	case []float32:
		return extract(s, shape, ranges), nil
	case []int64:
		return extract(s, shape, ranges), nil
	case []int32:
		return extract(s, shape, ranges), nil
	case []uint8:
		return extract(s, shape, ranges), nil
	case []bool:
		return extract(s, shape, ranges), nil
	case []string:
		return extract(s, shape, ranges), nil
	default:
		return nil, fmt.Errorf("backend: unsupported payload type %T", full)
	}
}

func placeRegion(full any, shape []int, ranges []Range, data any) error {
	switch d := full.(type) {
	case []float64:
		return place(d, shape, ranges, data)
	case []float32:
		return place(d, shape, ranges, data)
	case []int64:
		return place(d, shape, ranges, data)
	case []int32:
		return place(d, shape, ranges, data)
	case []uint8:
		return place(d, shape, ranges, data)
	case []bool:
		return place(d, shape, ranges, data)
	case []string:
		return place(d, shape, ranges, data)
	default:
		return fmt.Errorf("backend: unsupported payload type %T", full)
	}
}

// regionRuns invokes fn once per contiguous last-dimension run of the
// region, passing the run's base offset into the full payload.
func regionRuns(shape []int, rs []Range, fn func(base, n int)) {
	rank := len(shape)
	if rank == 0 {
		return
	}
	for _, r := range rs {
		if r.Len() == 0 {
			return
		}
	}
	stride := make([]int, rank)
	stride[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		stride[i] = stride[i+1] * shape[i+1]
	}
	idx := make([]int, rank-1)
	for {
		base := 0
		for i := 0; i < rank-1; i++ {
			base += (rs[i].Start + idx[i]) * stride[i]
		}
		fn(base+rs[rank-1].Start, rs[rank-1].Len())

		i := rank - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < rs[i].Len() {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func extract[T any](src []T, shape []int, rs []Range) []T {
	out := make([]T, 0)
	regionRuns(shape, rs, func(base, n int) {
		out = append(out, src[base:base+n]...)
	})
	return out
}

func place[T any](dst []T, shape []int, rs []Range, data any) error {
	src, ok := data.([]T)
	if !ok {
		return fmt.Errorf("backend: payload type mismatch: %T vs %T", dst, data)
	}
	off := 0
	regionRuns(shape, rs, func(base, n int) {
		copy(dst[base:base+n], src[off:off+n])
		off += n
	})
	return nil
}
