// Package dataflow is a reusable in-process streaming dataflow engine.
//
// It executes user-defined directed acyclic graphs of typed nodes over
// bounded or unbounded item streams. A Builder names nodes (sources,
// transforms, sinks, plus structural operators such as branch, batcher,
// unbatcher, lookup, aggregate and windowed join) and edges between them.
// Build compiles that definition into an immutable Graph; a Scheduler then
// runs every node concurrently with backpressure, coordinates lifecycles,
// applies retry/restart/resilience policies on failure, and reports through
// an Observer.
//
// Concrete connectors (Kafka, SQS, Postgres, HTTP, ...) are not part of this
// package — only the contracts nodes implement are specified here. See
// dataflow/connectors for reference implementations of those contracts.
package dataflow
