package annbed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
)

func TestChunks_Dense(t *testing.T) {
	ctx := context.Background()
	ad := New()
	data := make([]float64, 21)
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, ad.SetX(newDense(t, []int{7, 3}, data)))

	var starts, rows []int
	var got []float64
	for chunk, err := range ad.Chunks(ctx, 3) {
		require.NoError(t, err)
		starts = append(starts, chunk.Start)
		rows = append(rows, chunk.Rows)
		got = append(got, chunk.Data.(*element.Dense).Data.([]float64)...)
	}

	// Only the last block is short; the blocks reassemble the matrix.
	assert.Equal(t, []int{0, 3, 6}, starts)
	assert.Equal(t, []int{3, 3, 1}, rows)
	assert.Equal(t, data, got)
}

func TestChunks_Restartable(t *testing.T) {
	ctx := context.Background()
	ad := New()
	require.NoError(t, ad.SetX(newDense(t, []int{4, 2}, make([]float64, 8))))

	seq := ad.Chunks(ctx, 3)
	for pass := 0; pass < 2; pass++ {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 2, n)
	}

	// Breaking out of the loop early is fine.
	for chunk, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, 0, chunk.Start)
		break
	}
}

func TestChunks_Sparse(t *testing.T) {
	ctx := context.Background()
	ad := New()
	require.NoError(t, ad.SetX(newAdjacency(t, 5)))

	var blocks []*element.Sparse
	for chunk, err := range ad.Chunks(ctx, 2) {
		require.NoError(t, err)
		blocks = append(blocks, chunk.Data.(*element.Sparse))
	}
	require.Len(t, blocks, 3)

	// Sparse blocks stay sparse and reassemble the original.
	whole, err := element.StackSparse(blocks)
	require.NoError(t, err)
	assert.True(t, whole.Equal(newAdjacency(t, 5)))
}

func TestChunks_Backed(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMem()
	src, err := Create(ctx, store)
	require.NoError(t, err)

	data := make([]float64, 12)
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, src.SetX(newDense(t, []int{4, 3}, data)))
	require.NoError(t, src.Flush(ctx))

	// A freshly opened handle reads block by block through the store.
	ad, err := Open(ctx, store)
	require.NoError(t, err)

	var got []float64
	for chunk, err := range ad.Chunks(ctx, 2) {
		require.NoError(t, err)
		got = append(got, chunk.Data.(*element.Dense).Data.([]float64)...)
	}
	assert.Equal(t, data, got)
}

func TestChunks_RateLimited(t *testing.T) {
	ctx := context.Background()
	ad := New(WithResourceConfig(ResourceConfig{IOLimitBytesPerSec: 1 << 20}))
	require.NoError(t, ad.SetX(newDense(t, []int{6, 2}, make([]float64, 12))))

	n := 0
	for _, err := range ad.Chunks(ctx, 2) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 3, n)
}

func TestChunks_Errors(t *testing.T) {
	ctx := context.Background()
	ad := New()

	for _, err := range ad.Chunks(ctx, 0) {
		assert.ErrorIs(t, err, ErrSchemaViolation)
	}

	// No primary matrix.
	for _, err := range ad.Chunks(ctx, 10) {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestChunkLayer(t *testing.T) {
	ctx := context.Background()
	ad := New()
	require.NoError(t, ad.SetX(newDense(t, []int{4, 2}, make([]float64, 8))))
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, ad.SetLayer("raw", newDense(t, []int{4, 2}, data)))

	var got []float64
	for chunk, err := range ad.ChunkLayer(ctx, "raw", 3) {
		require.NoError(t, err)
		got = append(got, chunk.Data.(*element.Dense).Data.([]float64)...)
	}
	assert.Equal(t, data, got)

	for _, err := range ad.ChunkLayer(ctx, "missing", 3) {
		assert.ErrorIs(t, err, ErrNotFound)
	}
}
