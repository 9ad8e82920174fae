package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcatRows_Union(t *testing.T) {
	a := WithIndex([]string{"a0", "a1"})
	require.NoError(t, a.SetCol("shared", Float64Col([]float64{1, 2})))
	require.NoError(t, a.SetCol("onlyA", StringCol([]string{"x", "y"})))

	b := WithIndex([]string{"b0", "b1", "b2"})
	require.NoError(t, b.SetCol("shared", Float64Col([]float64{3, 4, 5})))
	require.NoError(t, b.SetCol("onlyB", Float64Col([]float64{7, 8, 9})))

	out, err := ConcatRows([]*Frame{a, b}, Union, "NA")
	require.NoError(t, err)

	assert.Equal(t, 5, out.NRows())
	assert.Equal(t, []string{"a0", "a1", "b0", "b1", "b2"}, out.Index())

	shared, _ := out.Col("shared")
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, shared.Data)

	// Rows from b lack onlyA and receive the sentinel.
	onlyA, ok := out.Col("onlyA")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "NA", "NA", "NA"}, onlyA.Data)

	// onlyB is a float column; the string sentinel cannot fill it, so
	// the gap is zero-valued.
	onlyB, ok := out.Col("onlyB")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 7, 8, 9}, onlyB.Data)
}

func TestConcatRows_Intersection(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetCol("shared", IntCol([]int64{1})))
	require.NoError(t, a.SetCol("onlyA", IntCol([]int64{2})))

	b := New(2)
	require.NoError(t, b.SetCol("shared", IntCol([]int64{3, 4})))

	out, err := ConcatRows([]*Frame{a, b}, Intersection, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, out.Columns())
	assert.Nil(t, out.Index())

	col, _ := out.Col("shared")
	assert.Equal(t, []int64{1, 3, 4}, col.Data)
}

func TestConcatRows_TypeMismatch(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetCol("c", IntCol([]int64{1})))
	b := New(1)
	require.NoError(t, b.SetCol("c", StringCol([]string{"x"})))

	_, err := ConcatRows([]*Frame{a, b}, Union, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestConcatRows_Categorical(t *testing.T) {
	a := New(2)
	require.NoError(t, a.SetCol("grade", CategoricalCol([]int32{0, 1}, []string{"lo", "hi"})))
	b := New(2)
	require.NoError(t, b.SetCol("grade", CategoricalCol([]int32{0, 1}, []string{"hi", "mid"})))

	out, err := ConcatRows([]*Frame{a, b}, Union, nil)
	require.NoError(t, err)

	col, _ := out.Col("grade")
	require.Equal(t, TypeCategorical, col.Type)
	want := []string{"lo", "hi", "hi", "mid"}
	for i, w := range want {
		got, ok := col.Category(i)
		require.True(t, ok, "row %d", i)
		assert.Equal(t, w, got)
	}
}

func TestConcatRows_CategoricalSentinel(t *testing.T) {
	a := New(1)
	require.NoError(t, a.SetCol("grade", CategoricalCol([]int32{0}, []string{"lo"})))
	b := New(1) // lacks the column

	// A string sentinel becomes its own category.
	out, err := ConcatRows([]*Frame{a, b}, Union, "unknown")
	require.NoError(t, err)
	col, _ := out.Col("grade")
	got, ok := col.Category(1)
	require.True(t, ok)
	assert.Equal(t, "unknown", got)

	// Without a string sentinel the gap is the missing code.
	out, err = ConcatRows([]*Frame{a, b}, Union, nil)
	require.NoError(t, err)
	col, _ = out.Col("grade")
	_, ok = col.Category(1)
	assert.False(t, ok)
}

func TestConcatRows_MixedIndex(t *testing.T) {
	a := WithIndex([]string{"a0"})
	b := New(1)

	// The result has an index only when every input has one.
	out, err := ConcatRows([]*Frame{a, b}, Union, nil)
	require.NoError(t, err)
	assert.Nil(t, out.Index())
}

func TestReconcile(t *testing.T) {
	a := WithIndex([]string{"g0", "g1"})
	require.NoError(t, a.SetCol("name", StringCol([]string{"n0", "n1"})))
	require.NoError(t, a.SetCol("onlyA", IntCol([]int64{1, 2})))

	b := WithIndex([]string{"g0", "g1"})
	require.NoError(t, b.SetCol("name", StringCol([]string{"n0", "n1"})))
	require.NoError(t, b.SetCol("onlyB", IntCol([]int64{3, 4})))

	union, err := Reconcile([]*Frame{a, b}, Union)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name", "onlyA", "onlyB"}, union.Columns())
	assert.Equal(t, []string{"g0", "g1"}, union.Index())

	inter, err := Reconcile([]*Frame{a, b}, Intersection)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, inter.Columns())

	// Values come from the first input that defines the column.
	col, _ := union.Col("onlyB")
	assert.Equal(t, []int64{3, 4}, col.Data)
}

func TestReconcile_LengthMismatch(t *testing.T) {
	a := New(2)
	b := New(3)
	_, err := Reconcile([]*Frame{a, b}, Union)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
