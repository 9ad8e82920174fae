package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annbed/annbed/backend"
)

func TestAllocLenClone(t *testing.T) {
	v, err := Alloc(backend.DTypeInt32, 4)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, v)
	assert.Equal(t, 4, Len(v))

	c := Clone([]float64{1, 2})
	assert.Equal(t, []float64{1, 2}, c)
	c.([]float64)[0] = 9
	// Clone must not alias.
	assert.Equal(t, []float64{1, 2}, Clone([]float64{1, 2}))

	_, err = Alloc(backend.DTypeNone, 1)
	assert.Error(t, err)
}

func TestGatherConcatCopy(t *testing.T) {
	g := Gather([]int64{10, 20, 30}, []int{2, 0, 2})
	assert.Equal(t, []int64{30, 10, 30}, g)

	cat, err := Concat([]string{"a"}, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cat)

	_, err = Concat([]int64{1}, []float64{2})
	assert.Error(t, err)

	dst := make([]float64, 4)
	require.NoError(t, Copy(dst, 1, []float64{7, 8, 9}, 1, 2))
	assert.Equal(t, []float64{0, 8, 9, 0}, dst)
}

func TestFill(t *testing.T) {
	v := []float64{0, 0, 0, 0}
	require.NoError(t, Fill(v, 1, 3, 1.5))
	assert.Equal(t, []float64{0, 1.5, 1.5, 0}, v)

	// Numeric coercion: an int sentinel fills a float column.
	w := []float64{0, 0}
	require.NoError(t, Fill(w, 0, 2, 2))
	assert.Equal(t, []float64{2, 2}, w)

	s := []string{"", ""}
	require.NoError(t, Fill(s, 0, 2, "na"))
	assert.Equal(t, []string{"na", "na"}, s)

	assert.Error(t, Fill(v, 0, 1, "oops"))
}

func TestMatrixHelpers(t *testing.T) {
	// 3x2 row-major matrix.
	m := []float64{1, 2, 3, 4, 5, 6}

	rows, err := GatherRows(m, 2, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 1, 2}, rows)

	cols, err := GatherCols(m, 3, 2, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, cols)

	both, err := Gather2D(m, 2, []int{0, 2}, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 6, 5}, both)

	assert.Equal(t, []float64{3, 4}, SliceRows(m, 2, 1, 2))

	stacked, err := StackRows(2, []float64{1, 2}, []float64{3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, stacked)
}

func TestStackRows_ZeroColumns(t *testing.T) {
	// Zero-width blocks hold no data and stack to an empty result.
	stacked, err := StackRows(0, []float64{}, []float64{})
	require.NoError(t, err)
	assert.Empty(t, stacked)

	_, err = StackRows(0, []float64{1})
	assert.Error(t, err)

	_, err = StackRows(2, []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]bool{true, false}, []bool{true, false}))
	assert.False(t, Equal([]int64{1}, []int64{2}))
	assert.False(t, Equal([]int64{1}, []int32{1}))
}
