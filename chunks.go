package annbed

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
)

// Chunk is one block of consecutive observations of the primary matrix.
type Chunk struct {
	// Start is the first observation index covered by the block.
	Start int
	// Rows is the number of observations in the block. Only the last
	// block of an iteration may be short.
	Rows int
	// Data holds the block, all variables wide. Dense elements yield
	// dense blocks, sparse elements sparse blocks.
	Data element.Value
}

// Chunks iterates the primary matrix in blocks of at most size
// observations. Backed matrices are read block by block through the
// store, so a matrix never has to fit in memory; reads pass through the
// I/O rate limit when one is configured. The sequence is restartable;
// ranging over it again starts from the first block. Iteration stops at
// the first error, which is yielded with a zero Chunk.
func (c *Container) Chunks(ctx context.Context, size int) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if size <= 0 {
			yield(Chunk{}, fmt.Errorf("%w: chunk size %d", ErrSchemaViolation, size))
			return
		}
		c.mu.RLock()
		x := c.x
		err := c.checkOpen()
		c.mu.RUnlock()
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		if x == nil {
			yield(Chunk{}, fmt.Errorf("%w: primary matrix", ErrNotFound))
			return
		}
		c.chunkElement(ctx, x, size, yield)
	}
}

// ChunkLayer is Chunks for a named layer instead of the primary matrix.
func (c *Container) ChunkLayer(ctx context.Context, name string, size int) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		c.mu.RLock()
		err := c.checkOpen()
		c.mu.RUnlock()
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		e, err := c.layers.Get(name)
		if err != nil {
			yield(Chunk{}, translateError(err))
			return
		}
		c.chunkElement(ctx, e, size, yield)
	}
}

func (c *Container) chunkElement(ctx context.Context, e *element.Element, size int, yield func(Chunk, error) bool) {
	if size <= 0 {
		yield(Chunk{}, fmt.Errorf("%w: chunk size %d", ErrSchemaViolation, size))
		return
	}
	shape := e.Shape()
	if len(shape) != 2 {
		yield(Chunk{}, fmt.Errorf("%w: chunked element has rank %d", ErrSchemaViolation, len(shape)))
		return
	}
	nrows, ncols := shape[0], shape[1]
	width := ncols * e.DType().Size()
	for start := 0; start < nrows; start += size {
		stop := start + size
		if stop > nrows {
			stop = nrows
		}
		if err := c.res.WaitIO(ctx, (stop-start)*width); err != nil {
			yield(Chunk{}, err)
			return
		}
		begin := time.Now()
		v, err := e.ReadSlice(ctx, []backend.Range{{Start: start, Stop: stop}, {Start: 0, Stop: ncols}})
		c.metrics.RecordChunk(stop-start, time.Since(begin), err)
		if err != nil {
			yield(Chunk{}, translateError(err))
			return
		}
		if !yield(Chunk{Start: start, Rows: stop - start, Data: v}, nil) {
			return
		}
	}
}
