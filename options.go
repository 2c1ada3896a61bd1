package memgo

import (
	"log/slog"

	"github.com/hupe1980/memgo/resource"
)

type options struct {
	raw              RawAllocator
	metricsCollector MetricsCollector
	logger           *Logger
	controller       *resource.Controller
	trackLive        bool
	scrubOnFree      bool
}

// Option configures an Allocator at construction time. Each concern gets
// a With* constructor instead of a backend-specific NewXxxAllocator
// variant, so combinations compose freely.
type Option func(*options)

// WithRawAllocator configures the raw backend that provides storage.
//
// If nil is passed, the managed-heap backend is used.
func WithRawAllocator(raw RawAllocator) Option {
	return func(o *options) {
		if raw == nil {
			raw = NewHeapAllocator()
		}
		o.raw = raw
	}
}

// WithResourceController attaches a resource controller that enforces a
// memory budget. Every allocation reserves its size against the budget
// before touching the raw backend; a request that would exceed the limit
// fails with resource.ErrMemoryLimitExceeded without allocating.
//
// Pass nil to disable budgeting (the default).
//
// Example:
//
//	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	a := memgo.NewAllocator(memgo.WithResourceController(ctrl))
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithLeakTracking enables the live-allocation registry. Every block handed
// out is recorded with its element type and size until it is freed, and the
// surviving set is available via LiveAllocations.
//
// Tracking costs one map entry plus one bitmap bit per live block and takes
// a mutex on every allocate/free. Leave it off on hot paths.
func WithLeakTracking(enabled bool) Option {
	return func(o *options) {
		o.trackLive = enabled
	}
}

// WithScrubOnFree zeroes block contents before returning them to the raw
// backend. Useful when blocks hold key material or other data that must not
// linger in freed storage.
func WithScrubOnFree(enabled bool) Option {
	return func(o *options) {
		o.scrubOnFree = enabled
	}
}

// WithMetricsCollector routes operation outcomes into mc. A nil collector
// reverts to the no-op default.
//
//	metrics := &memgo.BasicMetricsCollector{}
//	a := memgo.NewAllocator(memgo.WithMetricsCollector(metrics))
//	// ... workload ...
//	fmt.Printf("allocs: %d\n", metrics.GetStats().AllocCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger attaches a structured logger. Allocations log at Debug,
// overflows at Warn and failures at Error; a nil logger reverts to the
// silent default.
//
//	a := memgo.NewAllocator(memgo.WithLogger(memgo.NewJSONLogger(slog.LevelInfo)))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel is shorthand for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		raw:              NewHeapAllocator(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
