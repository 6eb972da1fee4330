// Package smd is the client-facing object model and dispatch engine for
// structured metadata records: Scheme declares a namespace's fields,
// Record binds values to a Scheme with type-checked setters, and Batch
// groups a sequence of operations for execution against a sharded set
// of backends.
//
// A Batch is executed by grouping its operations by destination shard
// and verb, sending one wire message per group, and scattering replies
// back to each operation's original position. The client talks to the
// shard servers directly over the binary wire protocol; cmd/coordinator
// only tells it which address hosts each shard and is not on the data
// path.
package smd
