package dataflow

import "time"

// Options holds engine-wide defaults, assembled by Option functions passed
// to NewBuilder. Prefer the functional options below over constructing
// this directly; the struct is exported so tests can inspect the resolved
// configuration.
type Options struct {
	DefaultEdgeCapacity int
	ShutdownBudget      time.Duration
	DeadLetterSink      DeadLetterSink
	Observer            Observer
	CorrelationIDFunc   func() string
	DefaultRetry        *RetryOptions

	// DefaultMaxConcurrent is the worker-pool size applied to a
	// Sink/Transform/Lookup/PassThrough node that didn't get its own
	// ExecutionStrategy via Builder.WithExecutionStrategy. 0 or 1 means
	// sequential, matching the zero-value default.
	DefaultMaxConcurrent int
	// DefaultQueueDepth bounds the inflight queue of the pool
	// DefaultMaxConcurrent builds. 0 means "same as DefaultMaxConcurrent".
	DefaultQueueDepth int
	// DefaultNodeTimeout caps how long a single item may spend in a node's
	// processing body before it is cancelled, for every node that doesn't
	// set its own via Builder.WithNodeTimeout. 0 means no timeout.
	DefaultNodeTimeout time.Duration
	// DefaultCircuitBreaker is applied to every resilient node (one with
	// RetryOptions set) that didn't specify its own CircuitBreaker.
	DefaultCircuitBreaker *CircuitBreakerOptions
	// Metrics, when set, receives Prometheus-style counters and gauges for
	// every run. Nil disables metrics recording entirely.
	Metrics SchedulerMetrics

	pipelineHandlers []PipelineErrorHandler
}

func defaultOptions() *Options {
	return &Options{
		DefaultEdgeCapacity: 64,
		ShutdownBudget:      30 * time.Second,
		Observer:            NoopObserver{},
	}
}

// Option configures a Builder at construction time.
type Option func(*Options) error

// WithDefaultEdgeCapacity sets the channel buffer size used for edges that
// don't specify their own capacity. Must be >= 0; 0 means every send
// rendezvous with a receive (maximum backpressure).
func WithDefaultEdgeCapacity(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return &EngineError{Message: "default edge capacity must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.DefaultEdgeCapacity = n
		return nil
	}
}

// WithShutdownBudget bounds how long Run waits for in-flight items to drain
// after ctx is cancelled before forcibly tearing down remaining drivers.
func WithShutdownBudget(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return &EngineError{Message: "shutdown budget must be > 0", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.ShutdownBudget = d
		return nil
	}
}

// WithDeadLetterSink registers the sink used by nodes whose error handler
// returns DecisionDeadLetter. Build does not check for it: without a sink,
// a DecisionDeadLetter fails the node with ErrDeadLetterUnavailable at run
// time.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(o *Options) error {
		o.DeadLetterSink = sink
		return nil
	}
}

// WithObserver registers the Observer notified of lifecycle events across
// every node in the graph.
func WithObserver(obs Observer) Option {
	return func(o *Options) error {
		if obs == nil {
			return &EngineError{Message: "observer must not be nil", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.Observer = obs
		return nil
	}
}

// WithCorrelationIDFunc overrides the default random UUID correlation id
// generator, primarily for deterministic tests.
func WithCorrelationIDFunc(fn func() string) Option {
	return func(o *Options) error {
		o.CorrelationIDFunc = fn
		return nil
	}
}

// WithDefaultRetryOptions sets the RetryOptions applied to every Resilient
// node that doesn't specify its own via Builder.WithRetryOptions.
func WithDefaultRetryOptions(r RetryOptions) Option {
	return func(o *Options) error {
		o.DefaultRetry = &r
		return nil
	}
}

// WithMaxConcurrent sets the default worker-pool size for nodes that don't
// declare their own ExecutionStrategy.
//
// Default: 0 (sequential). I/O-bound pipelines typically want this in the
// 4-32 range; CPU-bound ones closer to runtime.NumCPU().
func WithMaxConcurrent(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.DefaultMaxConcurrent = n
		return nil
	}
}

// WithQueueDepth bounds the inflight queue of the worker pool
// WithMaxConcurrent builds for a node.
//
// Default: 0, which falls back to DefaultMaxConcurrent. Increase for nodes
// whose items arrive burstier than they're processed.
func WithQueueDepth(n int) Option {
	return func(o *Options) error {
		if n < 0 {
			return &EngineError{Message: "queue depth must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.DefaultQueueDepth = n
		return nil
	}
}

// WithDefaultNodeTimeout caps how long a single item may spend inside a
// node's processing body before ctx is cancelled, for every node that
// doesn't set its own via Builder.WithNodeTimeout.
//
// Default: 0 (no timeout). Prevents one slow item from blocking a node's
// driver indefinitely.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return &EngineError{Message: "default node timeout must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError}
		}
		o.DefaultNodeTimeout = d
		return nil
	}
}

// WithCircuitBreaker sets the CircuitBreakerOptions applied to every
// resilient node (one configured via WithRetryOptions/WithDefaultRetryOptions)
// that didn't specify its own breaker.
func WithCircuitBreaker(cb CircuitBreakerOptions) Option {
	return func(o *Options) error {
		c := cb
		o.DefaultCircuitBreaker = &c
		return nil
	}
}

// WithSchedulerMetrics attaches a SchedulerMetrics recorder — typically
// *observe.Metrics — that receives inflight-node gauges, edge queue depth,
// item latency, retry/restart counters, backpressure events, and
// per-subscriber Branch stats for every run of the built Graph.
func WithSchedulerMetrics(m SchedulerMetrics) Option {
	return func(o *Options) error {
		o.Metrics = m
		return nil
	}
}
