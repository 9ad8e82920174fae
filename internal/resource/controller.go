// Package resource bounds the engine's bulk work: how many elements are
// processed in parallel during subsetting, concatenation and flushing, and
// how fast backend I/O may proceed during chunked reads.
package resource

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxParallelElements caps how many elements a bulk operation works
	// on concurrently. If 0, defaults to GOMAXPROCS.
	MaxParallelElements int64

	// IOLimitBytesPerSec caps backend read throughput during chunked
	// iteration. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces the configured limits. A nil controller enforces
// nothing, so callers never need to guard against one.
type Controller struct {
	workSem   *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a controller from cfg.
func NewController(cfg Config) *Controller {
	workers := cfg.MaxParallelElements
	if workers <= 0 {
		workers = int64(runtime.GOMAXPROCS(0))
	}
	c := &Controller{
		workSem: semaphore.NewWeighted(workers),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireWorker blocks until a bulk-work slot is available or ctx is
// canceled.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workSem.Acquire(ctx, 1)
}

// ReleaseWorker returns a bulk-work slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workSem.Release(1)
}

// WaitIO blocks until the I/O budget admits a read of the given size.
// Oversized single reads are admitted in burst-sized installments.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
