package sel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMask(t *testing.T) {
	idx, err := Mask([]bool{true, false, true, false, true}).Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, idx)

	// Length must match the axis exactly.
	_, err = Mask([]bool{true}).Resolve(5)
	assert.ErrorIs(t, err, ErrMaskLength)

	idx, err = Mask([]bool{false, false}).Resolve(2)
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestIndices(t *testing.T) {
	idx, err := Indices([]int{4, 0, 4}).Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0, 4}, idx)

	_, err = Indices([]int{5}).Resolve(5)
	assert.ErrorIs(t, err, ErrOutOfRange)
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 5, ie.Index)
	assert.Equal(t, 5, ie.AxisLen)

	_, err = Indices([]int{-1}).Resolve(5)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRange(t *testing.T) {
	idx, err := Range(1, 7, 2).Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, idx)

	// Stop clamps to the axis length.
	idx, err = Range(8, 100, 1).Resolve(10)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9}, idx)

	idx, err = Range(3, 3, 1).Resolve(10)
	require.NoError(t, err)
	assert.Empty(t, idx)
}

func TestAll(t *testing.T) {
	idx, err := All().Resolve(3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.True(t, IsIdentity(idx, 3))
	assert.False(t, IsIdentity([]int{0, 2, 1}, 3))
	assert.False(t, IsIdentity([]int{0, 1}, 3))
}
