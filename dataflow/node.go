package dataflow

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// NodeKind identifies the structural role a node plays in a graph. The
// scheduler dispatches on this to decide which driver loop runs the node.
type NodeKind int

const (
	KindSource NodeKind = iota
	KindTransform
	KindSink
	KindBranch
	KindBatcher
	KindUnbatcher
	KindLookup
	KindAggregate
	KindJoin
	KindPassThrough
	KindMarker
)

func (k NodeKind) String() string {
	switch k {
	case KindSource:
		return "Source"
	case KindTransform:
		return "Transform"
	case KindSink:
		return "Sink"
	case KindBranch:
		return "Branch"
	case KindBatcher:
		return "Batcher"
	case KindUnbatcher:
		return "Unbatcher"
	case KindLookup:
		return "Lookup"
	case KindAggregate:
		return "Aggregate"
	case KindJoin:
		return "Join"
	case KindPassThrough:
		return "PassThrough"
	case KindMarker:
		return "Marker"
	default:
		return "Unknown"
	}
}

// Node is the type-erased handle the Graph, validator and Scheduler operate
// on. Concrete typed constructors below (NewSource, NewTransform, ...) build
// values satisfying this interface while keeping the processing function
// itself fully typed for the caller, so the graph and scheduler never need
// to know a node's concrete item types.
type Node interface {
	// ID is the unique name used in Connect/edge declarations.
	ID() string
	// Kind reports the structural role used for scheduling and validation.
	Kind() NodeKind
	// InputType is the reflect.Type accepted on the node's inbound edge, or
	// nil for nodes with no inbound edge (Source).
	InputType() reflect.Type
	// OutputType is the reflect.Type produced on the node's outbound edge, or
	// nil for nodes with no outbound edge (Sink).
	OutputType() reflect.Type
}

// erasedRunner is implemented by nodes whose body maps one input item to one
// output item or error — Transform, and Lookup when used as an enrichment
// step. The scheduler calls this directly; type assertions back to I/O
// happen inside the closure, never in the scheduler.
type erasedRunner interface {
	runErased(ctx context.Context, in any) (any, error)
}

// erasedSource is implemented by Source nodes.
type erasedSource interface {
	produceErased(ctx context.Context) (DataPipe[any], error)
}

// erasedSink is implemented by Sink nodes.
type erasedSink interface {
	consumeErased(ctx context.Context, in any) error
}

// erasedBranch is implemented by Branch nodes: fn reports which named
// downstream ports the item should be copied to. A nil or empty slice means
// broadcast to every declared subscriber.
type erasedBranch interface {
	routeErased(ctx context.Context, in any) ([]string, error)
}

// erasedAggregate is implemented by Aggregate nodes: fold folds one item
// into the running accumulator; zero produces the initial accumulator for a
// new window.
type erasedAggregate interface {
	zeroErased() any
	foldErased(acc any, in any) (any, error)
}

// erasedJoin is implemented by Join nodes: probe combines one item from
// either input side with the current state of the other side's window.
type erasedJoin interface {
	joinLeftErased(ctx context.Context, left any, rightWindow []any) (any, error)
	joinRightErased(ctx context.Context, right any, leftWindow []any) (any, error)
	// joinLeftUnmatchedErased/joinRightUnmatchedErased emit a row for an item
	// that never matched anything on the other side by the time its window
	// closed, paired with the other side's zero value. Only called for
	// JoinLeftOuter/JoinRightOuter/JoinFullOuter.
	joinLeftUnmatchedErased(ctx context.Context, left any) (any, error)
	joinRightUnmatchedErased(ctx context.Context, right any) (any, error)
}

// eraseSourcePipe adapts a typed DataPipe[T] to DataPipe[any] without
// reflection, by wrapping the per-item callback.
func eraseSourcePipe[T any](p DataPipe[T]) DataPipe[any] {
	return erasedPipeAdapter[T]{inner: p}
}

type erasedPipeAdapter[T any] struct{ inner DataPipe[T] }

func (a erasedPipeAdapter[T]) Each(ctx context.Context, fn func(any) error) error {
	return a.inner.Each(ctx, func(item T) error { return fn(item) })
}
func (a erasedPipeAdapter[T]) Replayable() bool { return a.inner.Replayable() }
func (a erasedPipeAdapter[T]) Name() string     { return a.inner.Name() }

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// --- Source -----------------------------------------------------------

// SourceFunc produces the stream of items a Source node emits. It is called
// once per run; returning a streaming DataPipe lets it emit items as they
// become available rather than materializing everything up front.
type SourceFunc[T any] func(ctx context.Context) (DataPipe[T], error)

type sourceNode[T any] struct {
	id string
	fn SourceFunc[T]
}

// NewSource builds a Source node named id whose output type is T.
func NewSource[T any](id string, fn SourceFunc[T]) Node {
	return &sourceNode[T]{id: id, fn: fn}
}

func (n *sourceNode[T]) ID() string               { return n.id }
func (n *sourceNode[T]) Kind() NodeKind            { return KindSource }
func (n *sourceNode[T]) InputType() reflect.Type   { return nil }
func (n *sourceNode[T]) OutputType() reflect.Type  { return typeOf[T]() }
func (n *sourceNode[T]) produceErased(ctx context.Context) (DataPipe[any], error) {
	p, err := n.fn(ctx)
	if err != nil {
		return nil, err
	}
	return eraseSourcePipe[T](p), nil
}

// --- Transform ----------------------------------------------------------

// TransformFunc maps one input item to one output item. Returning an error
// routes the item to the node's error handling policy rather than to the
// next edge.
type TransformFunc[I, O any] func(ctx context.Context, item I) (O, error)

type transformNode[I, O any] struct {
	id string
	fn TransformFunc[I, O]
}

// NewTransform builds a Transform node named id mapping I to O.
func NewTransform[I, O any](id string, fn TransformFunc[I, O]) Node {
	return &transformNode[I, O]{id: id, fn: fn}
}

func (n *transformNode[I, O]) ID() string              { return n.id }
func (n *transformNode[I, O]) Kind() NodeKind           { return KindTransform }
func (n *transformNode[I, O]) InputType() reflect.Type  { return typeOf[I]() }
func (n *transformNode[I, O]) OutputType() reflect.Type { return typeOf[O]() }
func (n *transformNode[I, O]) runErased(ctx context.Context, in any) (any, error) {
	out, err := n.fn(ctx, in.(I))
	return out, err
}

// --- Sink -----------------------------------------------------------------

// SinkFunc consumes one item, producing a side effect. Returning an error
// routes the item to the node's error handling policy.
type SinkFunc[T any] func(ctx context.Context, item T) error

type sinkNode[T any] struct {
	id string
	fn SinkFunc[T]
}

// NewSink builds a Sink node named id consuming T.
func NewSink[T any](id string, fn SinkFunc[T]) Node {
	return &sinkNode[T]{id: id, fn: fn}
}

func (n *sinkNode[T]) ID() string              { return n.id }
func (n *sinkNode[T]) Kind() NodeKind           { return KindSink }
func (n *sinkNode[T]) InputType() reflect.Type  { return typeOf[T]() }
func (n *sinkNode[T]) OutputType() reflect.Type { return nil }
func (n *sinkNode[T]) consumeErased(ctx context.Context, in any) error {
	return n.fn(ctx, in.(T))
}

// --- Branch (multicast) ---------------------------------------------------

// BranchFunc reports which named downstream ports should receive a copy of
// item. A nil or empty return broadcasts to every declared subscriber.
type BranchFunc[T any] func(ctx context.Context, item T) []string

type branchNode[T any] struct {
	id string
	fn BranchFunc[T]
}

// NewBranch builds a Branch node named id that multicasts T to a subset (or
// all) of its declared subscriber edges.
func NewBranch[T any](id string, fn BranchFunc[T]) Node {
	return &branchNode[T]{id: id, fn: fn}
}

func (n *branchNode[T]) ID() string              { return n.id }
func (n *branchNode[T]) Kind() NodeKind           { return KindBranch }
func (n *branchNode[T]) InputType() reflect.Type  { return typeOf[T]() }
func (n *branchNode[T]) OutputType() reflect.Type { return typeOf[T]() }
func (n *branchNode[T]) routeErased(ctx context.Context, in any) ([]string, error) {
	return n.fn(ctx, in.(T)), nil
}

// --- Batcher / Unbatcher --------------------------------------------------

// BatchOptions controls how a Batcher node groups items.
type BatchOptions struct {
	// MaxBatchSize flushes the current batch once it reaches this many items.
	// Zero means size never triggers a flush (MaxBatchLatency must then be set).
	MaxBatchSize int
	// MaxBatchLatency flushes the current (possibly partial) batch once this
	// much time has elapsed since its first item arrived, whichever comes
	// first relative to MaxBatchSize. Zero disables the time-based flush.
	MaxBatchLatency time.Duration
}

type batcherNode[T any] struct {
	id   string
	opts BatchOptions
}

// NewBatcher builds a Batcher node named id that groups T into []T per opts.
func NewBatcher[T any](id string, opts BatchOptions) Node {
	return &batcherNode[T]{id: id, opts: opts}
}

func (n *batcherNode[T]) ID() string              { return n.id }
func (n *batcherNode[T]) Kind() NodeKind           { return KindBatcher }
func (n *batcherNode[T]) InputType() reflect.Type  { return typeOf[T]() }
func (n *batcherNode[T]) OutputType() reflect.Type { return typeOf[[]T]() }
func (n *batcherNode[T]) batchOptions() BatchOptions { return n.opts }

// wrapBatch converts the type-erased accumulated items back into a concrete
// []T, the type the graph's edge validation checked against downstream
// nodes (typically an Unbatcher[T]).
func (n *batcherNode[T]) wrapBatch(items []any) any {
	out := make([]T, len(items))
	for i, v := range items {
		out[i] = v.(T)
	}
	return out
}

type unbatcherNode[T any] struct{ id string }

// NewUnbatcher builds an Unbatcher node named id that flattens []T back to a
// stream of T, preserving relative order within and across batches.
func NewUnbatcher[T any](id string) Node {
	return &unbatcherNode[T]{id: id}
}

func (n *unbatcherNode[T]) ID() string              { return n.id }
func (n *unbatcherNode[T]) Kind() NodeKind           { return KindUnbatcher }
func (n *unbatcherNode[T]) InputType() reflect.Type  { return typeOf[[]T]() }
func (n *unbatcherNode[T]) OutputType() reflect.Type { return typeOf[T]() }
func (n *unbatcherNode[T]) expandErased(in any) []any {
	batch := in.([]T)
	out := make([]any, len(batch))
	for i, v := range batch {
		out[i] = v
	}
	return out
}

// --- Lookup ---------------------------------------------------------------

// LookupFunc resolves an enrichment value for key. Implementations typically
// wrap an external store or cache (see dataflow/connectors/rediscache).
// Return ErrLookupMiss to report "no value for this key" as distinct from a
// genuine failure (store unreachable, bad response, ...).
type LookupFunc[K, V any] func(ctx context.Context, key K) (V, error)

// KeyFunc extracts the lookup key from an input item.
type KeyFunc[T, K any] func(item T) K

// MergeFunc combines the original item with its resolved value.
type MergeFunc[T, V, O any] func(item T, value V) O

// ErrLookupMiss is returned by a LookupFunc to report that key resolved to
// no value, rather than that the lookup itself failed.
var ErrLookupMiss = errors.New("dataflow: lookup miss")

// LookupMissPolicy controls what a Lookup node does when its LookupFunc
// reports ErrLookupMiss.
type LookupMissPolicy int

const (
	// LookupMissFail treats a miss like any other lookup error: the item
	// fails processing and is subject to the node's own retry/error-handler
	// configuration (same as a store-unreachable error would be).
	LookupMissFail LookupMissPolicy = iota
	// LookupMissSkip drops the item silently on a miss; nothing is emitted.
	LookupMissSkip
	// LookupMissZero merges the item with V's zero value on a miss instead
	// of failing or dropping it.
	LookupMissZero
)

// LookupOptions configures a Lookup node's miss handling.
type LookupOptions struct {
	// OnMiss selects what happens when LookupFunc returns ErrLookupMiss.
	// Zero value is LookupMissFail.
	OnMiss LookupMissPolicy
}

type lookupNode[T, K, V, O any] struct {
	id      string
	keyFn   KeyFunc[T, K]
	lookup  LookupFunc[K, V]
	mergeFn MergeFunc[T, V, O]
	opts    LookupOptions
}

// NewLookup builds a Lookup node named id: it extracts a key from each T via
// keyFn, resolves a V via lookup, and merges the pair into O. See
// LookupOptions for miss handling.
func NewLookup[T, K, V, O any](id string, keyFn KeyFunc[T, K], lookup LookupFunc[K, V], mergeFn MergeFunc[T, V, O], opts LookupOptions) Node {
	return &lookupNode[T, K, V, O]{id: id, keyFn: keyFn, lookup: lookup, mergeFn: mergeFn, opts: opts}
}

func (n *lookupNode[T, K, V, O]) ID() string              { return n.id }
func (n *lookupNode[T, K, V, O]) Kind() NodeKind           { return KindLookup }
func (n *lookupNode[T, K, V, O]) InputType() reflect.Type  { return typeOf[T]() }
func (n *lookupNode[T, K, V, O]) OutputType() reflect.Type { return typeOf[O]() }

// errLookupSkip signals runErased's caller (runErasedRunnerNode) to treat
// this item as a no-op: a miss under LookupMissSkip emits nothing rather
// than failing or propagating any output.
var errLookupSkip = errors.New("dataflow: lookup miss, item skipped")

func (n *lookupNode[T, K, V, O]) runErased(ctx context.Context, in any) (any, error) {
	item := in.(T)
	key := n.keyFn(item)
	val, err := n.lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrLookupMiss) {
			return nil, err
		}
		switch n.opts.OnMiss {
		case LookupMissSkip:
			return nil, errLookupSkip
		case LookupMissZero:
			var zero V
			return n.mergeFn(item, zero), nil
		default: // LookupMissFail
			return nil, err
		}
	}
	return n.mergeFn(item, val), nil
}

// --- Aggregate (windowed reduce) ------------------------------------------

// ZeroFunc produces the initial accumulator for a new window.
type ZeroFunc[A any] func() A

// FoldFunc folds one item into the running accumulator.
type FoldFunc[T, A any] func(acc A, item T) (A, error)

type aggregateNode[T, A any] struct {
	id      string
	zeroFn  ZeroFunc[A]
	foldFn  FoldFunc[T, A]
	assign  WindowAssigner
}

// NewAggregate builds an Aggregate node named id. Windowing behavior
// (tumbling/sliding/session, lateness handling) is supplied by assign; see
// window.go.
func NewAggregate[T, A any](id string, assign WindowAssigner, zeroFn ZeroFunc[A], foldFn FoldFunc[T, A]) Node {
	return &aggregateNode[T, A]{id: id, zeroFn: zeroFn, foldFn: foldFn, assign: assign}
}

func (n *aggregateNode[T, A]) ID() string              { return n.id }
func (n *aggregateNode[T, A]) Kind() NodeKind           { return KindAggregate }
func (n *aggregateNode[T, A]) InputType() reflect.Type  { return typeOf[T]() }
func (n *aggregateNode[T, A]) OutputType() reflect.Type { return typeOf[A]() }
func (n *aggregateNode[T, A]) zeroErased() any          { return n.zeroFn() }
func (n *aggregateNode[T, A]) foldErased(acc any, in any) (any, error) {
	return n.foldFn(acc.(A), in.(T))
}
func (n *aggregateNode[T, A]) windowAssigner() WindowAssigner { return n.assign }

// --- Join (windowed) -------------------------------------------------------

// JoinFunc combines a left and right item that fell in the same window into
// a single output. For an outer join's unmatched side, the other side is
// passed as its zero value.
type JoinFunc[L, R, O any] func(ctx context.Context, left L, right R) (O, error)

// JoinType selects which side(s) of a Join must have a match for a row to
// appear in the output.
type JoinType int

const (
	// JoinInner emits only rows where both sides matched within the window.
	JoinInner JoinType = iota
	// JoinLeftOuter additionally emits every left row that had no right
	// match by the time its window closed, paired with a zero R.
	JoinLeftOuter
	// JoinRightOuter additionally emits every right row that had no left
	// match by the time its window closed, paired with a zero L.
	JoinRightOuter
	// JoinFullOuter emits unmatched rows from both sides.
	JoinFullOuter
)

// JoinOptions configures a Join node's matching semantics.
type JoinOptions struct {
	Type JoinType
}

type joinNode[L, R, O any] struct {
	id     string
	fn     JoinFunc[L, R, O]
	assign WindowAssigner
	opts   JoinOptions
}

// NewJoin builds a Join node named id combining L from its "left" port and R
// from its "right" port, per assign's windowing and opts.Type's matching
// semantics.
func NewJoin[L, R, O any](id string, assign WindowAssigner, fn JoinFunc[L, R, O], opts JoinOptions) Node {
	return &joinNode[L, R, O]{id: id, fn: fn, assign: assign, opts: opts}
}

func (n *joinNode[L, R, O]) ID() string              { return n.id }
func (n *joinNode[L, R, O]) Kind() NodeKind           { return KindJoin }
func (n *joinNode[L, R, O]) InputType() reflect.Type  { return typeOf[L]() }
func (n *joinNode[L, R, O]) OutputType() reflect.Type { return typeOf[O]() }

// InputTypeForPort distinguishes the "left" and "right" inbound ports,
// which carry different element types; the generic validator in graph.go
// consults this instead of InputType for Join nodes.
func (n *joinNode[L, R, O]) InputTypeForPort(port string) reflect.Type {
	if port == "right" {
		return typeOf[R]()
	}
	return typeOf[L]()
}
func (n *joinNode[L, R, O]) windowAssigner() WindowAssigner { return n.assign }
func (n *joinNode[L, R, O]) joinType() JoinType              { return n.opts.Type }
func (n *joinNode[L, R, O]) joinLeftUnmatchedErased(ctx context.Context, left any) (any, error) {
	var zero R
	return n.fn(ctx, left.(L), zero)
}
func (n *joinNode[L, R, O]) joinRightUnmatchedErased(ctx context.Context, right any) (any, error) {
	var zero L
	return n.fn(ctx, zero, right.(R))
}
func (n *joinNode[L, R, O]) joinLeftErased(ctx context.Context, left any, rightWindow []any) (any, error) {
	var out []any
	for _, r := range rightWindow {
		v, err := n.fn(ctx, left.(L), r.(R))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
func (n *joinNode[L, R, O]) joinRightErased(ctx context.Context, right any, leftWindow []any) (any, error) {
	var out []any
	for _, l := range leftWindow {
		v, err := n.fn(ctx, l.(L), right.(R))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// --- PassThrough / Marker --------------------------------------------------

type passThroughNode[T any] struct{ id string }

// NewPassThrough builds a node named id that forwards T unchanged; useful as
// a named junction for branch fan-in or as an instrumentation point.
func NewPassThrough[T any](id string) Node {
	return &passThroughNode[T]{id: id}
}

func (n *passThroughNode[T]) ID() string              { return n.id }
func (n *passThroughNode[T]) Kind() NodeKind           { return KindPassThrough }
func (n *passThroughNode[T]) InputType() reflect.Type  { return typeOf[T]() }
func (n *passThroughNode[T]) OutputType() reflect.Type { return typeOf[T]() }
func (n *passThroughNode[T]) runErased(ctx context.Context, in any) (any, error) {
	return in, nil
}

type markerNode struct{ id string }

// NewMarker builds a zero-behavior node used only to document a place in the
// graph (e.g. for test assertions on validation/reachability rules).
func NewMarker(id string) Node { return &markerNode{id: id} }

func (n *markerNode) ID() string             { return n.id }
func (n *markerNode) Kind() NodeKind          { return KindMarker }
func (n *markerNode) InputType() reflect.Type { return nil }
func (n *markerNode) OutputType() reflect.Type { return nil }
