package element

import (
	"fmt"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/internal/buf"
)

// SparseLayout identifies the compressed dimension of a sparse matrix.
type SparseLayout uint8

const (
	// LayoutCSR compresses along rows.
	LayoutCSR SparseLayout = iota
	// LayoutCSC compresses along columns.
	LayoutCSC
)

// String returns the string representation of the SparseLayout.
func (l SparseLayout) String() string {
	if l == LayoutCSC {
		return "csc"
	}
	return "csr"
}

// Sparse is a two-dimensional compressed sparse matrix. IndPtr has one
// entry per major-axis position plus one; Indices holds minor-axis
// positions; Data holds the stored values.
type Sparse struct {
	Layout  SparseLayout
	NRows   int
	NCols   int
	IndPtr  []int64
	Indices []int64
	Data    any
}

// NewSparse builds a sparse value, validating the compressed structure.
func NewSparse(layout SparseLayout, nrows, ncols int, indptr, indices []int64, data any) (*Sparse, error) {
	if backend.DTypeOf(data) == backend.DTypeNone {
		return nil, fmt.Errorf("%w: unsupported sparse payload %T", ErrSchema, data)
	}
	major, minor := nrows, ncols
	if layout == LayoutCSC {
		major, minor = ncols, nrows
	}
	if len(indptr) != major+1 {
		return nil, fmt.Errorf("%w: indptr of %d entries for %d major positions", ErrSchema, len(indptr), major)
	}
	nnz := int(indptr[major])
	if len(indices) != nnz || buf.Len(data) != nnz {
		return nil, fmt.Errorf("%w: %d indices and %d values for nnz %d", ErrSchema, len(indices), buf.Len(data), nnz)
	}
	for _, i := range indices {
		if i < 0 || int(i) >= minor {
			return nil, fmt.Errorf("%w: sparse index %d out of range for minor axis of %d", ErrSchema, i, minor)
		}
	}
	return &Sparse{
		Layout:  layout,
		NRows:   nrows,
		NCols:   ncols,
		IndPtr:  indptr,
		Indices: indices,
		Data:    data,
	}, nil
}

// Kind implements Value.
func (s *Sparse) Kind() Kind { return KindSparse }

// Shape implements Value.
func (s *Sparse) Shape() []int { return []int{s.NRows, s.NCols} }

// DType implements Value.
func (s *Sparse) DType() backend.DType { return backend.DTypeOf(s.Data) }

// NNZ returns the number of stored values.
func (s *Sparse) NNZ() int { return len(s.Indices) }

func (s *Sparse) majorLen() int {
	if s.Layout == LayoutCSC {
		return s.NCols
	}
	return s.NRows
}

func (s *Sparse) minorLen() int {
	if s.Layout == LayoutCSC {
		return s.NRows
	}
	return s.NCols
}

// Gather returns a new sparse matrix holding the selected rows and columns,
// keeping the layout. A nil index slice leaves that axis untouched.
// Major-axis gathers copy compressed runs directly; minor-axis gathers go
// through a generic per-run remap.
func (s *Sparse) Gather(rows, cols []int) (*Sparse, error) {
	out := s
	var major, minor []int
	if s.Layout == LayoutCSR {
		major, minor = rows, cols
	} else {
		major, minor = cols, rows
	}
	for _, i := range major {
		if i < 0 || i >= s.majorLen() {
			return nil, fmt.Errorf("%w: index %d out of range for axis of %d", ErrSchema, i, s.majorLen())
		}
	}
	for _, i := range minor {
		if i < 0 || i >= s.minorLen() {
			return nil, fmt.Errorf("%w: index %d out of range for axis of %d", ErrSchema, i, s.minorLen())
		}
	}
	if major != nil {
		var err error
		if out, err = out.gatherMajor(major); err != nil {
			return nil, err
		}
	}
	if minor != nil {
		var err error
		if out, err = out.gatherMinor(minor); err != nil {
			return nil, err
		}
	}
	if out == s {
		out = s.clone()
	}
	return out, nil
}

func (s *Sparse) gatherMajor(idx []int) (*Sparse, error) {
	indptr := make([]int64, len(idx)+1)
	var dataIdx []int
	var indices []int64
	for i, m := range idx {
		start, stop := s.IndPtr[m], s.IndPtr[m+1]
		for p := start; p < stop; p++ {
			dataIdx = append(dataIdx, int(p))
			indices = append(indices, s.Indices[p])
		}
		indptr[i+1] = indptr[i] + (stop - start)
	}
	return s.rebuild(idx, nil, indptr, indices, buf.Gather(s.Data, dataIdx)), nil
}

func (s *Sparse) gatherMinor(idx []int) (*Sparse, error) {
	// Each original minor position may appear several times in the
	// selection; walk the selection per run so the output stays ordered
	// by the new minor index.
	lookup := make(map[int64]int, s.minorLen())
	indptr := make([]int64, s.majorLen()+1)
	var dataIdx []int
	var indices []int64
	for m := 0; m < s.majorLen(); m++ {
		start, stop := s.IndPtr[m], s.IndPtr[m+1]
		clear(lookup)
		for p := start; p < stop; p++ {
			lookup[s.Indices[p]] = int(p)
		}
		for newPos, old := range idx {
			if p, ok := lookup[int64(old)]; ok {
				dataIdx = append(dataIdx, p)
				indices = append(indices, int64(newPos))
			}
		}
		indptr[m+1] = int64(len(indices))
	}
	return s.rebuild(nil, idx, indptr, indices, buf.Gather(s.Data, dataIdx)), nil
}

// rebuild assembles a gathered result, recomputing the row/column counts
// from the applied major/minor selections.
func (s *Sparse) rebuild(major, minor []int, indptr, indices []int64, data any) *Sparse {
	nrows, ncols := s.NRows, s.NCols
	if s.Layout == LayoutCSR {
		if major != nil {
			nrows = len(major)
		}
		if minor != nil {
			ncols = len(minor)
		}
	} else {
		if major != nil {
			ncols = len(major)
		}
		if minor != nil {
			nrows = len(minor)
		}
	}
	if indices == nil {
		indices = []int64{}
	}
	return &Sparse{
		Layout:  s.Layout,
		NRows:   nrows,
		NCols:   ncols,
		IndPtr:  indptr,
		Indices: indices,
		Data:    data,
	}
}

func (s *Sparse) clone() *Sparse {
	return &Sparse{
		Layout:  s.Layout,
		NRows:   s.NRows,
		NCols:   s.NCols,
		IndPtr:  append([]int64(nil), s.IndPtr...),
		Indices: append([]int64(nil), s.Indices...),
		Data:    buf.Clone(s.Data),
	}
}

// SliceMajor returns the contiguous major-axis block [start, stop),
// keeping the compressed layout without touching per-value indices.
func (s *Sparse) SliceMajor(start, stop int) *Sparse {
	base := s.IndPtr[start]
	indptr := make([]int64, stop-start+1)
	for i := range indptr {
		indptr[i] = s.IndPtr[start+i] - base
	}
	indices := append([]int64(nil), s.Indices[base:s.IndPtr[stop]]...)
	data := buf.Slice(s.Data, int(base), int(s.IndPtr[stop]))
	idx := make([]int, stop-start)
	for i := range idx {
		idx[i] = start + i
	}
	return s.rebuild(idx, nil, indptr, indices, data)
}

// Dense converts the matrix to a dense value.
func (s *Sparse) Dense() (*Dense, error) {
	data, err := buf.Alloc(s.DType(), s.NRows*s.NCols)
	if err != nil {
		return nil, err
	}
	for m := 0; m < s.majorLen(); m++ {
		for p := s.IndPtr[m]; p < s.IndPtr[m+1]; p++ {
			r, c := m, int(s.Indices[p])
			if s.Layout == LayoutCSC {
				r, c = c, m
			}
			if err := buf.Copy(data, r*s.NCols+c, s.Data, int(p), 1); err != nil {
				return nil, err
			}
		}
	}
	return &Dense{Dims: []int{s.NRows, s.NCols}, Data: data}, nil
}

// Equal reports whether two sparse matrices represent the same dense
// content (layout differences are ignored).
func (s *Sparse) Equal(o *Sparse) bool {
	if s.NRows != o.NRows || s.NCols != o.NCols || s.DType() != o.DType() {
		return false
	}
	a, err := s.Dense()
	if err != nil {
		return false
	}
	b, err := o.Dense()
	if err != nil {
		return false
	}
	return a.Equal(b)
}

// StackSparse vertically stacks sparse matrices sharing a column count and
// layout. CSR inputs stack by concatenating compressed runs; CSC inputs
// stack per column with row offsets.
func StackSparse(blocks []*Sparse) (*Sparse, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("element: stack of zero sparse blocks")
	}
	first := blocks[0]
	totalRows := 0
	for _, b := range blocks {
		if b.Layout != first.Layout || b.NCols != first.NCols || b.DType() != first.DType() {
			return nil, fmt.Errorf("%w: sparse stack inputs disagree on layout, width or dtype", ErrSchema)
		}
		totalRows += b.NRows
	}
	if first.Layout == LayoutCSR {
		indptr := []int64{0}
		var indices []int64
		var parts []any
		for _, b := range blocks {
			base := indptr[len(indptr)-1]
			for i := 1; i < len(b.IndPtr); i++ {
				indptr = append(indptr, base+b.IndPtr[i])
			}
			indices = append(indices, b.Indices...)
			parts = append(parts, b.Data)
		}
		data, err := buf.Concat(parts...)
		if err != nil {
			return nil, err
		}
		return NewSparse(LayoutCSR, totalRows, first.NCols, indptr, indices, data)
	}

	// CSC: gather each column's entries across blocks, offsetting rows.
	indptr := make([]int64, first.NCols+1)
	var indices []int64
	type run struct {
		block    int
		from, to int64
	}
	var runs []run
	for c := 0; c < first.NCols; c++ {
		rowOff := int64(0)
		for bi, b := range blocks {
			from, to := b.IndPtr[c], b.IndPtr[c+1]
			if to > from {
				runs = append(runs, run{block: bi, from: from, to: to})
				for p := from; p < to; p++ {
					indices = append(indices, b.Indices[p]+rowOff)
				}
			}
			rowOff += int64(b.NRows)
		}
		indptr[c+1] = int64(len(indices))
	}
	data, err := buf.Alloc(first.DType(), len(indices))
	if err != nil {
		return nil, err
	}
	off := 0
	for _, r := range runs {
		n := int(r.to - r.from)
		if err := buf.Copy(data, off, blocks[r.block].Data, int(r.from), n); err != nil {
			return nil, err
		}
		off += n
	}
	return NewSparse(LayoutCSC, totalRows, first.NCols, indptr, indices, data)
}

// HStackSparse horizontally stacks sparse matrices sharing a row count
// and layout. It stacks the transposed views and transposes back, so the
// cost matches StackSparse.
func HStackSparse(blocks []*Sparse) (*Sparse, error) {
	t := make([]*Sparse, len(blocks))
	for i, b := range blocks {
		t[i] = b.transpose()
	}
	out, err := StackSparse(t)
	if err != nil {
		return nil, err
	}
	return out.transpose(), nil
}

// transpose returns the transposed view sharing the underlying arrays.
// Swapping the layout tag swaps which axis the compressed pointers run
// over, which is exactly a transpose.
func (s *Sparse) transpose() *Sparse {
	layout := LayoutCSC
	if s.Layout == LayoutCSC {
		layout = LayoutCSR
	}
	return &Sparse{Layout: layout, NRows: s.NCols, NCols: s.NRows, IndPtr: s.IndPtr, Indices: s.Indices, Data: s.Data}
}

// BlockDiagSparse places square sparse matrices block-diagonally, with
// zeros everywhere else. All blocks must share layout and dtype.
func BlockDiagSparse(blocks []*Sparse) (*Sparse, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("element: block-diagonal of zero sparse blocks")
	}
	first := blocks[0]
	total := 0
	for _, b := range blocks {
		if b.NRows != b.NCols {
			return nil, fmt.Errorf("%w: block-diagonal input is %dx%d, not square", ErrSchema, b.NRows, b.NCols)
		}
		if b.Layout != first.Layout || b.DType() != first.DType() {
			return nil, fmt.Errorf("%w: block-diagonal inputs disagree on layout or dtype", ErrSchema)
		}
		total += b.NRows
	}
	indptr := []int64{0}
	var indices []int64
	var parts []any
	off := int64(0)
	for _, b := range blocks {
		base := indptr[len(indptr)-1]
		for i := 1; i < len(b.IndPtr); i++ {
			indptr = append(indptr, base+b.IndPtr[i])
		}
		for _, i := range b.Indices {
			indices = append(indices, i+off)
		}
		parts = append(parts, b.Data)
		off += int64(b.NRows)
	}
	data, err := buf.Concat(parts...)
	if err != nil {
		return nil, err
	}
	return NewSparse(first.Layout, total, total, indptr, indices, data)
}
