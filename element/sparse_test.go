package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annbed/annbed/backend"
)

func TestNewSparse_Validation(t *testing.T) {
	_, err := NewSparse(LayoutCSR, 2, 2, []int64{0, 1}, []int64{0}, []float64{1})
	assert.ErrorIs(t, err, ErrSchema) // indptr too short

	_, err = NewSparse(LayoutCSR, 2, 2, []int64{0, 1, 1}, []int64{5}, []float64{1})
	assert.ErrorIs(t, err, ErrSchema) // index out of range

	_, err = NewSparse(LayoutCSR, 2, 2, []int64{0, 1, 2}, []int64{0, 1}, []float64{1})
	assert.ErrorIs(t, err, ErrSchema) // nnz disagreement

	s, err := NewSparse(LayoutCSR, 2, 2, []int64{0, 1, 2}, []int64{0, 1}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, s.NNZ())
	assert.Equal(t, []int{2, 2}, s.Shape())
	assert.Equal(t, backend.DTypeFloat64, s.DType())
}

func TestSparse_GatherRows(t *testing.T) {
	s := newCSR(t)

	g, err := s.Gather([]int{2, 0}, nil)
	require.NoError(t, err)
	d, err := g.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 0, 4, 1, 0, 2, 0}, d.Data)

	// Duplicate rows are allowed.
	g, err = s.Gather([]int{0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, g.NNZ())

	_, err = s.Gather([]int{3}, nil)
	assert.Error(t, err)
}

func TestSparse_GatherCols(t *testing.T) {
	s := newCSR(t)

	g, err := s.Gather(nil, []int{3, 1, 0})
	require.NoError(t, err)
	d, err := g.Dense()
	require.NoError(t, err)
	// Columns 3, 1, 0 of each row.
	assert.Equal(t, []float64{0, 0, 1, 0, 0, 0, 4, 3, 0}, d.Data)
}

func TestSparse_GatherBoth(t *testing.T) {
	s := newCSR(t)
	g, err := s.Gather([]int{0, 2}, []int{0, 2})
	require.NoError(t, err)
	d, err := g.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0, 0}, d.Data)
}

func TestSparse_SliceMajor(t *testing.T) {
	s := newCSR(t)
	b := s.SliceMajor(1, 3)
	assert.Equal(t, []int{2, 4}, b.Shape())
	d, err := b.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 3, 0, 4}, d.Data)
}

func TestSparse_CSC(t *testing.T) {
	// Same logical matrix as newCSR, compressed by column.
	s, err := NewSparse(LayoutCSC, 3, 4,
		[]int64{0, 1, 2, 3, 4}, []int64{0, 2, 0, 2}, []float64{1, 3, 2, 4})
	require.NoError(t, err)

	d, err := s.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 2, 0, 0, 0, 0, 0, 0, 3, 0, 4}, d.Data)

	g, err := s.Gather([]int{2}, nil)
	require.NoError(t, err)
	gd, err := g.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 0, 4}, gd.Data)
}

func TestStackSparse(t *testing.T) {
	a := newCSR(t)
	b, err := NewSparse(LayoutCSR, 2, 4, []int64{0, 1, 1}, []int64{0}, []float64{9})
	require.NoError(t, err)

	out, err := StackSparse([]*Sparse{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, out.Shape())
	assert.Equal(t, 5, out.NNZ())

	d, err := out.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{
		1, 0, 2, 0,
		0, 0, 0, 0,
		0, 3, 0, 4,
		9, 0, 0, 0,
		0, 0, 0, 0,
	}, d.Data)

	// Width mismatch fails.
	w, err := NewSparse(LayoutCSR, 1, 3, []int64{0, 0}, nil, []float64{})
	require.NoError(t, err)
	_, err = StackSparse([]*Sparse{a, w})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestStackSparse_CSC(t *testing.T) {
	a, err := NewSparse(LayoutCSC, 1, 2, []int64{0, 1, 1}, []int64{0}, []float64{5})
	require.NoError(t, err)
	b, err := NewSparse(LayoutCSC, 2, 2, []int64{0, 0, 2}, []int64{0, 1}, []float64{6, 7})
	require.NoError(t, err)

	out, err := StackSparse([]*Sparse{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())
	d, err := out.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0, 0, 6, 0, 7}, d.Data)
}

func TestHStackSparse(t *testing.T) {
	a, err := NewSparse(LayoutCSR, 2, 1, []int64{0, 1, 1}, []int64{0}, []float64{1})
	require.NoError(t, err)
	b, err := NewSparse(LayoutCSR, 2, 2, []int64{0, 1, 2}, []int64{1, 0}, []float64{2, 3})
	require.NoError(t, err)

	out, err := HStackSparse([]*Sparse{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape())
	d, err := out.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 2, 0, 3, 0}, d.Data)

	// Row-count mismatch fails.
	c, err := NewSparse(LayoutCSR, 3, 1, []int64{0, 0, 0, 0}, nil, []float64{})
	require.NoError(t, err)
	_, err = HStackSparse([]*Sparse{a, c})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestBlockDiagSparse(t *testing.T) {
	a, err := NewSparse(LayoutCSR, 2, 2, []int64{0, 1, 2}, []int64{1, 0}, []float64{1, 2})
	require.NoError(t, err)
	b, err := NewSparse(LayoutCSR, 1, 1, []int64{0, 1}, []int64{0}, []float64{3})
	require.NoError(t, err)

	out, err := BlockDiagSparse([]*Sparse{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, out.Shape())
	d, err := out.Dense()
	require.NoError(t, err)
	assert.Equal(t, []float64{
		0, 1, 0,
		2, 0, 0,
		0, 0, 3,
	}, d.Data)

	// Non-square blocks are rejected.
	r, err := NewSparse(LayoutCSR, 1, 2, []int64{0, 0}, nil, []float64{})
	require.NoError(t, err)
	_, err = BlockDiagSparse([]*Sparse{r})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestSparse_Equal(t *testing.T) {
	a := newCSR(t)
	b := newCSR(t)
	assert.True(t, a.Equal(b))
	assert.True(t, ValueEqual(a, b))

	c, err := NewSparse(LayoutCSR, 3, 4, []int64{0, 2, 2, 4}, []int64{0, 2, 1, 3}, []float64{1, 2, 3, 5})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}
