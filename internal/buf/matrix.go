package buf

import (
	"fmt"

	"github.com/annbed/annbed/backend"
)

// Row-major two-dimensional gathers. The slice length must equal
// nrows*ncols; callers validate indices beforehand.

// GatherRows returns a new row-major matrix holding the selected rows.
func GatherRows(v any, ncols int, rows []int) (any, error) {
	dt := backend.DTypeOf(v)
	out, err := Alloc(dt, len(rows)*ncols)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if err := Copy(out, i*ncols, v, r*ncols, ncols); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GatherCols returns a new row-major matrix holding the selected columns
// of every row.
func GatherCols(v any, nrows, ncols int, cols []int) (any, error) {
	dt := backend.DTypeOf(v)
	out, err := Alloc(dt, nrows*len(cols))
	if err != nil {
		return nil, err
	}
	for r := 0; r < nrows; r++ {
		for i, c := range cols {
			if err := Copy(out, r*len(cols)+i, v, r*ncols+c, 1); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Gather2D applies a row gather and a column gather in one pass.
func Gather2D(v any, ncols int, rows, cols []int) (any, error) {
	dt := backend.DTypeOf(v)
	out, err := Alloc(dt, len(rows)*len(cols))
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		for j, c := range cols {
			if err := Copy(out, i*len(cols)+j, v, r*ncols+c, 1); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SliceRows returns a copy of the contiguous row block [start, stop).
func SliceRows(v any, ncols, start, stop int) any {
	return Slice(v, start*ncols, stop*ncols)
}

// StackRows vertically stacks row-major matrices that share a column count.
// Zero-width blocks carry no data and stack to an empty result.
func StackRows(ncols int, blocks ...any) (any, error) {
	for _, b := range blocks {
		n := Len(b)
		if ncols == 0 {
			if n != 0 {
				return nil, fmt.Errorf("buf: block length %d for zero columns", n)
			}
			continue
		}
		if n%ncols != 0 {
			return nil, fmt.Errorf("buf: block length %d not divisible by %d columns", n, ncols)
		}
	}
	return Concat(blocks...)
}
