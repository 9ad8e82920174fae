package annbed

import (
	"log/slog"

	"github.com/annbed/annbed/internal/resource"
)

// ResourceConfig bounds the engine's bulk work.
type ResourceConfig struct {
	// MaxParallelElements caps how many elements subsetting, concatenation
	// and flushing work on concurrently. If 0, defaults to GOMAXPROCS.
	MaxParallelElements int64

	// IOLimitBytesPerSec caps backend read throughput during chunked
	// iteration. If 0, unlimited.
	IOLimitBytesPerSec int64
}

type options struct {
	logger  *Logger
	metrics MetricsCollector
	res     ResourceConfig
}

// Option configures container construction.
type Option func(*options)

// WithLogger configures structured logging for container operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithResourceConfig configures parallelism and I/O limits for bulk
// operations.
func WithResourceConfig(cfg ResourceConfig) Option {
	return func(o *options) {
		o.res = cfg
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MaxParallelElements: o.res.MaxParallelElements,
		IOLimitBytesPerSec:  o.res.IOLimitBytesPerSec,
	})
}
