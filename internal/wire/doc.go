// Package wire implements the binary on-the-wire encoding of SMD operation
// payloads and reply fragments (spec.md §6).
//
// Every per-shard request is a RequestHeader followed by a packed sequence
// of operation payloads, one per operation the batch routed to that shard.
// Each payload is self-delimited: NUL-terminated strings for namespaces and
// keys, a little-endian u32 length prefix for embedded documents. Reply
// fragments mirror the same self-delimiting discipline so a client can
// consume exactly one fragment per shard-local operation without any
// separate framing layer.
//
// This package only encodes and decodes byte slices; it knows nothing about
// connections, pools, or batches. internal/transport supplies the
// connection, and internal/smd supplies the batch/dispatch logic that calls
// into this package once per operation.
package wire
