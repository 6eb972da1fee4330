// Package transport is the only SMD package that reads or writes a
// net.Conn. The client-side dispatch engine (internal/smd) uses it for
// all traffic; the shard server uses net only to listen (cmd/shard) and
// accept (internal/shard) and hands each accepted connection to
// transport.Wrap, so the wire framing lives in exactly one place.
package transport
