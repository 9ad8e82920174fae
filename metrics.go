package annbed

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordMaterialize is called after an element is read into memory.
	RecordMaterialize(duration time.Duration, err error)

	// RecordFlush is called after a flush, with the number of elements
	// written.
	RecordFlush(elements int, duration time.Duration, err error)

	// RecordSubset is called after a subset operation.
	RecordSubset(duration time.Duration, err error)

	// RecordConcat is called after a concatenation, with the number of
	// inputs merged.
	RecordConcat(inputs int, duration time.Duration, err error)

	// RecordChunk is called for each chunk produced during iteration.
	RecordChunk(rows int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMaterialize(time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSubset(time.Duration, error)      {}
func (NoopMetricsCollector) RecordConcat(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordChunk(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MaterializeCount      atomic.Int64
	MaterializeErrors     atomic.Int64
	MaterializeTotalNanos atomic.Int64
	FlushCount            atomic.Int64
	FlushElements         atomic.Int64
	FlushErrors           atomic.Int64
	SubsetCount           atomic.Int64
	SubsetErrors          atomic.Int64
	SubsetTotalNanos      atomic.Int64
	ConcatCount           atomic.Int64
	ConcatInputs          atomic.Int64
	ConcatErrors          atomic.Int64
	ChunkCount            atomic.Int64
	ChunkRows             atomic.Int64
	ChunkErrors           atomic.Int64
}

// RecordMaterialize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMaterialize(duration time.Duration, err error) {
	b.MaterializeCount.Add(1)
	b.MaterializeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MaterializeErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(elements int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushElements.Add(int64(elements))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordSubset implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSubset(duration time.Duration, err error) {
	b.SubsetCount.Add(1)
	b.SubsetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SubsetErrors.Add(1)
	}
}

// RecordConcat implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConcat(inputs int, duration time.Duration, err error) {
	b.ConcatCount.Add(1)
	b.ConcatInputs.Add(int64(inputs))
	if err != nil {
		b.ConcatErrors.Add(1)
	}
}

// RecordChunk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunk(rows int, duration time.Duration, err error) {
	b.ChunkCount.Add(1)
	b.ChunkRows.Add(int64(rows))
	if err != nil {
		b.ChunkErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		MaterializeCount:    b.MaterializeCount.Load(),
		MaterializeErrors:   b.MaterializeErrors.Load(),
		MaterializeAvgNanos: b.avgMaterializeNanos(),
		FlushCount:          b.FlushCount.Load(),
		FlushElements:       b.FlushElements.Load(),
		FlushErrors:         b.FlushErrors.Load(),
		SubsetCount:         b.SubsetCount.Load(),
		SubsetErrors:        b.SubsetErrors.Load(),
		SubsetAvgNanos:      b.avgSubsetNanos(),
		ConcatCount:         b.ConcatCount.Load(),
		ConcatInputs:        b.ConcatInputs.Load(),
		ConcatErrors:        b.ConcatErrors.Load(),
		ChunkCount:          b.ChunkCount.Load(),
		ChunkRows:           b.ChunkRows.Load(),
		ChunkErrors:         b.ChunkErrors.Load(),
	}
}

func (b *BasicMetricsCollector) avgMaterializeNanos() int64 {
	count := b.MaterializeCount.Load()
	if count == 0 {
		return 0
	}
	return b.MaterializeTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) avgSubsetNanos() int64 {
	count := b.SubsetCount.Load()
	if count == 0 {
		return 0
	}
	return b.SubsetTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	MaterializeCount    int64
	MaterializeErrors   int64
	MaterializeAvgNanos int64
	FlushCount          int64
	FlushElements       int64
	FlushErrors         int64
	SubsetCount         int64
	SubsetErrors        int64
	SubsetAvgNanos      int64
	ConcatCount         int64
	ConcatInputs        int64
	ConcatErrors        int64
	ChunkCount          int64
	ChunkRows           int64
	ChunkErrors         int64
}
