package element

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/frame"
)

func newDense(t *testing.T, dims []int, data any) *Dense {
	t.Helper()
	d, err := NewDense(dims, data)
	require.NoError(t, err)
	return d
}

func newCSR(t *testing.T) *Sparse {
	t.Helper()
	// 3x4:
	//  1 0 2 0
	//  0 0 0 0
	//  0 3 0 4
	s, err := NewSparse(LayoutCSR, 3, 4,
		[]int64{0, 2, 2, 4}, []int64{0, 2, 1, 3}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	return s
}

func TestElement_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, err := store.Open(ctx, "/")
	require.NoError(t, err)

	e := New(newDense(t, []int{2, 2}, []float64{1, 2, 3, 4}))
	assert.Equal(t, StateUnbound, e.State())
	assert.Equal(t, KindDense, e.Kind())
	assert.Equal(t, []int{2, 2}, e.Shape())
	assert.Equal(t, backend.DTypeFloat64, e.DType())

	// Flushing an unbound element fails; dropping it would lose data.
	assert.ErrorIs(t, e.Flush(ctx, false), ErrUnbound)
	assert.ErrorIs(t, e.Drop(), ErrUnbound)

	require.NoError(t, e.Bind(store, root, "x"))
	assert.Equal(t, StateLoaded, e.State())
	require.NoError(t, e.Flush(ctx, true))
	assert.Equal(t, StateBackedUnloaded, e.State())

	// Value refuses to touch the backend.
	_, err = e.Value()
	assert.ErrorIs(t, err, ErrUnloaded)

	v, err := e.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, e.State())
	assert.True(t, ValueEqual(v, newDense(t, []int{2, 2}, []float64{1, 2, 3, 4})))
}

func TestElement_OpenFromStore(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	src := New(newCSR(t))
	require.NoError(t, src.FlushTo(ctx, store, root, "adj", true))

	e, err := Open(ctx, store, root, "adj")
	require.NoError(t, err)
	assert.Equal(t, StateBackedUnloaded, e.State())
	assert.Equal(t, KindSparse, e.Kind())
	assert.Equal(t, []int{3, 4}, e.Shape())
	assert.Equal(t, backend.DTypeFloat64, e.DType())

	v, err := e.Materialize(ctx)
	require.NoError(t, err)
	assert.True(t, ValueEqual(v, newCSR(t)))

	_, err = Open(ctx, store, root, "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestElement_ReadSliceDenseBacked(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	src := New(newDense(t, []int{3, 3}, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, src.FlushTo(ctx, store, root, "x", true))

	e, err := Open(ctx, store, root, "x")
	require.NoError(t, err)

	v, err := e.ReadSlice(ctx, []backend.Range{{Start: 1, Stop: 3}, {Start: 0, Stop: 2}})
	require.NoError(t, err)
	assert.True(t, ValueEqual(v, newDense(t, []int{2, 2}, []float64{4, 5, 7, 8})))

	// The read must not have materialized the element.
	assert.Equal(t, StateBackedUnloaded, e.State())

	_, err = e.ReadSlice(ctx, []backend.Range{{Start: 0, Stop: 4}, {Start: 0, Stop: 1}})
	assert.ErrorIs(t, err, ErrSchema)
	_, err = e.ReadSlice(ctx, []backend.Range{{Start: 0, Stop: 1}})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestElement_ReadSliceSparseBacked(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	src := New(newCSR(t))
	require.NoError(t, src.FlushTo(ctx, store, root, "adj", true))

	e, err := Open(ctx, store, root, "adj")
	require.NoError(t, err)

	// Contiguous major range with the full minor axis stays on the
	// backed fast path.
	v, err := e.ReadSlice(ctx, []backend.Range{{Start: 2, Stop: 3}, {Start: 0, Stop: 4}})
	require.NoError(t, err)
	assert.Equal(t, StateBackedUnloaded, e.State())

	want, err := NewSparse(LayoutCSR, 1, 4, []int64{0, 2}, []int64{1, 3}, []float64{3, 4})
	require.NoError(t, err)
	assert.True(t, ValueEqual(v, want))

	// A partial minor range falls back to materializing.
	v, err = e.ReadSlice(ctx, []backend.Range{{Start: 0, Stop: 1}, {Start: 0, Stop: 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, v.Shape())
	assert.Equal(t, StateLoaded, e.State())
}

func TestElement_Gather(t *testing.T) {
	ctx := context.Background()
	e := New(newDense(t, []int{3, 2}, []int64{1, 2, 3, 4, 5, 6}))

	g, err := e.Gather(ctx, []int{2, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateUnbound, g.State())
	v, err := g.Value()
	require.NoError(t, err)
	assert.True(t, ValueEqual(v, newDense(t, []int{2, 2}, []int64{5, 6, 1, 2})))
}

func TestElement_FrameRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	f := frame.WithIndex([]string{"c0", "c1", "c2"})
	require.NoError(t, f.SetCol("total", frame.Float64Col([]float64{1, 2, 3})))
	require.NoError(t, f.SetCol("batch", frame.CategoricalCol([]int32{0, 1, 0}, []string{"b1", "b2"})))
	require.NoError(t, f.SetCol("pass", frame.BoolCol([]bool{true, false, true})))

	src := New(&Table{Frame: f})
	require.NoError(t, src.FlushTo(ctx, store, root, "obs", true))

	e, err := Open(ctx, store, root, "obs")
	require.NoError(t, err)
	assert.Equal(t, KindFrame, e.Kind())
	assert.Equal(t, []int{3}, e.Shape())

	v, err := e.Materialize(ctx)
	require.NoError(t, err)
	got := v.(*Table).Frame
	assert.True(t, f.Equal(got))
}

func TestElement_MappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	m := NewMapping()
	sc, err := NewScalar("hello")
	require.NoError(t, err)
	m.Set("note", New(sc))
	m.Set("vec", New(newDense(t, []int{2}, []int64{7, 8})))
	nested := NewMapping()
	count, err := NewScalar(int64(3))
	require.NoError(t, err)
	nested.Set("count", New(count))
	m.Set("params", New(nested))

	src := New(m)
	require.NoError(t, src.FlushTo(ctx, store, root, "uns", true))

	e, err := Open(ctx, store, root, "uns")
	require.NoError(t, err)
	v, err := e.Materialize(ctx)
	require.NoError(t, err)

	got := v.(*Mapping)
	assert.Equal(t, []string{"note", "vec", "params"}, got.Names())

	ne, ok := got.Get("note")
	require.True(t, ok)
	nv, err := ne.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", nv.(*Scalar).Value)

	pe, ok := got.Get("params")
	require.True(t, ok)
	pv, err := pe.Materialize(ctx)
	require.NoError(t, err)
	ce, ok := pv.(*Mapping).Get("count")
	require.True(t, ok)
	cv, err := ce.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cv.(*Scalar).Value)
}

func TestElement_FlushReplaces(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")

	e := New(newDense(t, []int{2}, []float64{1, 2}))
	require.NoError(t, e.FlushTo(ctx, store, root, "x", false))

	// Rewriting with a different shape replaces the node.
	e2 := New(newDense(t, []int{3}, []float64{9, 9, 9}))
	require.NoError(t, e2.FlushTo(ctx, store, root, "x", true))

	back, err := Open(ctx, store, root, "x")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, back.Shape())
}

func TestNewScalar(t *testing.T) {
	s, err := NewScalar(5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Value)
	assert.Equal(t, backend.DTypeInt64, s.DType())

	_, err = NewScalar([]byte("no"))
	assert.Error(t, err)
}
