package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Columns(t *testing.T) {
	f := New(3)
	require.NoError(t, f.SetCol("score", Float64Col([]float64{0.1, 0.2, 0.3})))
	require.NoError(t, f.SetCol("label", StringCol([]string{"a", "b", "c"})))

	assert.Equal(t, 3, f.NRows())
	assert.Equal(t, []string{"score", "label"}, f.Columns())
	assert.True(t, f.Has("score"))
	assert.False(t, f.Has("missing"))

	col, ok := f.Col("label")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, col.Data)

	// Length mismatch is rejected.
	err := f.SetCol("bad", IntCol([]int64{1}))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	// Replacing a column keeps its position.
	require.NoError(t, f.SetCol("score", Float64Col([]float64{9, 9, 9})))
	assert.Equal(t, []string{"score", "label"}, f.Columns())

	f.DelCol("score")
	assert.Equal(t, []string{"label"}, f.Columns())
}

func TestFrame_Index(t *testing.T) {
	f := WithIndex([]string{"c1", "c2", "c3"})
	assert.Equal(t, 3, f.NRows())
	assert.Equal(t, []string{"c1", "c2", "c3"}, f.Index())

	pos, err := f.Lookup([]string{"c3", "c1"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, pos)

	_, err = f.Lookup([]string{"nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.SetIndex([]string{"x"})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestFrame_Gather(t *testing.T) {
	f := WithIndex([]string{"r0", "r1", "r2", "r3"})
	require.NoError(t, f.SetCol("v", IntCol([]int64{10, 11, 12, 13})))
	require.NoError(t, f.SetCol("cat", CategoricalCol([]int32{0, 1, 0, 1}, []string{"lo", "hi"})))

	g := f.Gather([]int{3, 1})
	assert.Equal(t, 2, g.NRows())
	assert.Equal(t, []string{"r3", "r1"}, g.Index())
	col, _ := g.Col("v")
	assert.Equal(t, []int64{13, 11}, col.Data)
	cat, _ := g.Col("cat")
	assert.Equal(t, []int32{1, 1}, cat.Codes)
	assert.Equal(t, []string{"lo", "hi"}, cat.Cats)
}

func TestFrame_CategoricalColumn(t *testing.T) {
	col := CategoricalCol([]int32{0, -1, 1}, []string{"a", "b"})
	assert.Equal(t, 3, col.Len())

	v, ok := col.Category(0)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	// Code -1 marks a missing value.
	_, ok = col.Category(1)
	assert.False(t, ok)

	f := New(3)
	assert.Error(t, f.SetCol("bad", CategoricalCol([]int32{0, 0, 5}, []string{"a"})))
}

func TestFrame_CloneAndEqual(t *testing.T) {
	f := WithIndex([]string{"a", "b"})
	require.NoError(t, f.SetCol("v", BoolCol([]bool{true, false})))

	g := f.Clone()
	assert.True(t, f.Equal(g))

	require.NoError(t, g.SetCol("v", BoolCol([]bool{false, false})))
	assert.False(t, f.Equal(g))
}
