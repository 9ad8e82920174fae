package element

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annbed/annbed/backend"
)

func TestCollection_InMemory(t *testing.T) {
	ctx := context.Background()
	c := NewCollection()
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set("b", New(newDense(t, []int{1}, []float64{1}))))
	require.NoError(t, c.Set("a", New(newDense(t, []int{1}, []float64{2}))))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"b", "a"}, c.Names())
	assert.Equal(t, []string{"a", "b"}, c.SortedNames())

	e, err := c.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StateUnbound, e.State())

	_, err = c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Delete(ctx, "b"))
	assert.Equal(t, []string{"a"}, c.Names())
	assert.ErrorIs(t, c.Delete(ctx, "b"), ErrNotFound)
}

func TestCollection_Backed(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	root, _ := store.Open(ctx, "/")
	group, err := store.CreateGroup(ctx, root, "layers")
	require.NoError(t, err)

	c := NewCollection()
	c.Bind(store, group)

	// Set binds new members to the group.
	require.NoError(t, c.Set("counts", New(newDense(t, []int{2, 2}, []int64{1, 2, 3, 4}))))
	e, err := c.Get("counts")
	require.NoError(t, err)
	assert.True(t, e.Bound())
	assert.Equal(t, StateLoaded, e.State())

	require.NoError(t, e.Flush(ctx, true))
	assert.Equal(t, StateBackedUnloaded, e.State())

	children, err := store.ListChildren(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"counts"}, children)

	// Delete removes the backend child as well.
	require.NoError(t, c.Delete(ctx, "counts"))
	children, err = store.ListChildren(ctx, group)
	require.NoError(t, err)
	assert.Empty(t, children)
}
