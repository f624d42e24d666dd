package dataflow

import "time"

// Builder assembles nodes and edges into a Graph. It is not safe for
// concurrent use; build a graph on one goroutine, then Run it from as many
// goroutines as you like.
type Builder struct {
	opts  *Options
	nodes map[string]Node
	edges []Edge
	cfg   map[string]*nodeExecConfig
	rules []ValidationRule
	err   error
}

// NewBuilder starts a Builder configured by the given Options.
func NewBuilder(options ...Option) *Builder {
	opts := defaultOptions()
	var err error
	for _, o := range options {
		if e := o(opts); e != nil && err == nil {
			err = e
		}
	}
	return &Builder{
		opts:  opts,
		nodes: make(map[string]Node),
		cfg:   make(map[string]*nodeExecConfig),
		err:   err,
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) configFor(id string) *nodeExecConfig {
	c, ok := b.cfg[id]
	if !ok {
		c = &nodeExecConfig{}
		b.cfg[id] = c
	}
	return c
}

// AddNode registers a node built by one of the New* constructors in
// node.go. Returns b for chaining.
func (b *Builder) AddNode(n Node) *Builder {
	if _, exists := b.nodes[n.ID()]; exists {
		b.fail(&EngineError{Message: "duplicate node id " + n.ID(), Code: "DUPLICATE_NODE", Kind: ValidationError})
		return b
	}
	b.nodes[n.ID()] = n
	return b
}

// Connect declares an edge from (from, fromPort) to (to, toPort). Use ""
// for fromPort/toPort on ordinary single-port nodes; Branch and Join use
// named ports (see ConnectPort).
func (b *Builder) Connect(from, to string) *Builder {
	return b.ConnectPort(from, "", to, "")
}

// ConnectPort declares a port-qualified edge. For a Join node's inbound
// edges, toPort must be "left" or "right". For a Branch node's outbound
// edges, fromPort names the subscriber the branch's routing function
// selects by name.
func (b *Builder) ConnectPort(from, fromPort, to, toPort string) *Builder {
	b.edges = append(b.edges, Edge{From: from, FromPort: fromPort, To: to, ToPort: toPort})
	if fromPort != "" {
		cfg := b.configFor(from)
		cfg.subscribers = appendUnique(cfg.subscribers, fromPort)
	}
	return b
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// WithExecutionStrategy overrides the ExecutionStrategy for nodeID. Only
// meaningful for Source/Transform/Sink/Lookup/PassThrough/Branch nodes;
// Batcher/Unbatcher/Aggregate/Join have dedicated driver loops.
func (b *Builder) WithExecutionStrategy(nodeID string, strategy ExecutionStrategy) *Builder {
	b.configFor(nodeID).strategy = strategy
	return b
}

// WithRetryOptions attaches resilience to nodeID: its ExecutionStrategy is
// wrapped in a ResilientStrategy using retry, the node's error handler (if
// any was set via WithErrorHandler), and the builder's DeadLetterSink.
func (b *Builder) WithRetryOptions(nodeID string, retry RetryOptions) *Builder {
	cfg := b.configFor(nodeID)
	r := retry
	cfg.retry = &r
	return b
}

// WithAckStrategy overrides when a Sink node acknowledges the AckMessage
// delivery metadata attached to an item, if any. The default,
// AckAutoOnSinkSuccess, is applied even without calling this.
func (b *Builder) WithAckStrategy(nodeID string, strategy AckStrategy) *Builder {
	b.configFor(nodeID).ackStrategy = strategy
	return b
}

// WithErrorHandler attaches a typed per-item error handler to nodeID.
func WithErrorHandler[I any](b *Builder, nodeID string, handler NodeErrorHandler[I]) *Builder {
	b.configFor(nodeID).errorHandler = wrapNodeErrorHandler(handler)
	return b
}

// WithNodeTimeout bounds how long a single item may spend in nodeID's
// processing body before ctx is cancelled, overriding the Options-level
// DefaultNodeTimeout for this node.
func (b *Builder) WithNodeTimeout(nodeID string, d time.Duration) *Builder {
	if d < 0 {
		b.fail(&EngineError{Message: "node timeout must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError})
		return b
	}
	b.configFor(nodeID).nodeTimeout = d
	return b
}

// WithFaultPropagation controls how a Branch node (nodeID) reacts when one
// of its subscriber deliveries fails. FaultPropagationAbort (the default)
// cancels the remaining in-flight deliveries and fails the node.
// FaultPropagationIsolate lets every other subscriber keep draining; the
// faulted one is marked via SchedulerMetrics.SetBranchSubscriberStats and
// is still offered every later item routed to it, its fault flag tracking
// the outcome of its most recent delivery.
func (b *Builder) WithFaultPropagation(nodeID string, fp FaultPropagation) *Builder {
	b.configFor(nodeID).faultPropagation = fp
	return b
}

// WithEdgeCapacity overrides the default edge buffer size for every
// outbound edge of nodeID.
func (b *Builder) WithEdgeCapacity(nodeID string, capacity int) *Builder {
	if capacity < 0 {
		b.fail(&EngineError{Message: "edge capacity must be >= 0", Code: "INVALID_OPTION", Kind: ConfigurationError})
		return b
	}
	b.configFor(nodeID).edgeCapacity = &capacity
	return b
}

// AddPipelineErrorHandler registers a handler consulted when a node's
// driver itself fails (as opposed to a single item). Handlers run in
// registration order; the first to return RestartNode wins.
func (b *Builder) AddPipelineErrorHandler(h PipelineErrorHandler) *Builder {
	b.opts.pipelineHandlers = append(b.opts.pipelineHandlers, h)
	return b
}

// WithValidationRule adds a custom structural check run during Build in
// addition to the built-in rules.
func (b *Builder) WithValidationRule(rule ValidationRule) *Builder {
	b.rules = append(b.rules, rule)
	return b
}

// Validate runs every built-in and custom validation rule without
// compiling a Graph, letting callers inspect issues before deciding whether
// to Build.
func (b *Builder) Validate() ValidationResult {
	return validateGraph(b.nodes, b.edges, b.rules)
}

// Build compiles the builder's nodes and edges into an immutable Graph. It
// returns the first construction-time error encountered (from option
// parsing or a WithX call) or a *ValidationResult error if validation
// fails.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	result := b.Validate()
	if !result.OK() {
		return nil, &result
	}
	if err := b.validateResilienceDeadLetter(); err != nil {
		return nil, err
	}

	metrics := b.opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	g := &Graph{
		nodes:                 b.nodes,
		edges:                 b.edges,
		order:                 topoSort(b.nodes, b.edges),
		edgeCapacity:          b.opts.DefaultEdgeCapacity,
		shutdownBudgetDur:     b.opts.ShutdownBudget,
		nodeConfig:            b.cfg,
		retryDefault:          b.opts.DefaultRetry,
		pipelineHandlers:      b.opts.pipelineHandlers,
		deadLetterSink:        b.opts.DeadLetterSink,
		observer:              b.opts.Observer,
		corrIDGen:             b.opts.CorrelationIDFunc,
		metrics:               metrics,
		defaultMaxConcurrent:  b.opts.DefaultMaxConcurrent,
		defaultQueueDepth:     b.opts.DefaultQueueDepth,
		defaultNodeTimeout:    b.opts.DefaultNodeTimeout,
		defaultCircuitBreaker: b.opts.DefaultCircuitBreaker,
	}
	for _, cfg := range g.nodeConfig {
		if cfg.retry != nil && cfg.deadLetterSink == nil {
			cfg.deadLetterSink = g.deadLetterSink
		}
		if cfg.retry == nil && g.retryDefault != nil {
			r := *g.retryDefault
			cfg.retry = &r
			cfg.deadLetterSink = g.deadLetterSink
		}
		if cfg.retry != nil && cfg.retry.CircuitBreaker == nil && g.defaultCircuitBreaker != nil {
			cb := *g.defaultCircuitBreaker
			cfg.retry.CircuitBreaker = &cb
		}
	}
	// Apply engine-wide defaults (WithMaxConcurrent/WithQueueDepth/
	// WithDefaultNodeTimeout) to every node that takes them, including ones
	// with no explicit per-node config yet.
	for id, node := range b.nodes {
		usesStrategy := node.Kind() == KindSink || node.Kind() == KindTransform ||
			node.Kind() == KindLookup || node.Kind() == KindPassThrough
		needsDefaults := (usesStrategy && g.defaultMaxConcurrent > 1) || g.defaultNodeTimeout > 0
		if !needsDefaults {
			continue
		}
		cfg, ok := g.nodeConfig[id]
		if !ok {
			cfg = &nodeExecConfig{}
			g.nodeConfig[id] = cfg
		}
		if cfg.strategy == nil && usesStrategy && g.defaultMaxConcurrent > 1 {
			cfg.strategy = NewParallelStrategy(g.defaultMaxConcurrent, Unordered, g.defaultQueueDepth, DropPolicyBlock)
		}
		if cfg.nodeTimeout == 0 && g.defaultNodeTimeout > 0 {
			cfg.nodeTimeout = g.defaultNodeTimeout
		}
	}
	return g, nil
}

// TryBuild is Build without returning an error type assertable to
// *ValidationResult — it always reports validation issues through the
// returned ValidationResult, leaving err for construction-time failures
// only.
func (b *Builder) TryBuild() (*Graph, ValidationResult, error) {
	if b.err != nil {
		return nil, ValidationResult{}, b.err
	}
	result := b.Validate()
	if !result.OK() {
		return nil, result, nil
	}
	g, err := b.Build()
	return g, result, err
}

func (b *Builder) validateResilienceDeadLetter() error {
	for id, cfg := range b.cfg {
		if cfg.retry == nil {
			continue
		}
		node := b.nodes[id]
		streaming := node != nil && node.Kind() != KindSource
		if err := cfg.retry.Validate(streaming); err != nil {
			return err
		}
	}
	return nil
}
