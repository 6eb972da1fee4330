package smd

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/transport"
	"github.com/dreamware/smd/internal/wire"
)

// Engine is the batch dispatch engine (§4.3): it groups a Batch's
// operations by destination shard and verb, sends one wire message per
// group, and scatters the replies back to each operation's original
// position.
//
// A shard registered via WithLocal is served entirely in-process: its
// groups skip internal/transport and the wire encoding altogether,
// calling straight into the Backend. This is the local-backend fast
// path §4.3 calls for when the dispatch engine and the shard it needs
// happen to live in the same process (e.g. a coordinator colocated with
// shard 0).
type Engine struct {
	NumShards int
	Router    Router
	Pool      *transport.Pool
	Semantics wire.Semantics

	local map[int]backend.Backend
}

// NewEngine constructs a dispatch engine over numShards shards, using
// router to resolve a shard ID to a remote address and pool to reuse
// connections across batches.
func NewEngine(numShards int, router Router, pool *transport.Pool) *Engine {
	return &Engine{NumShards: numShards, Router: router, Pool: pool}
}

// WithLocal registers be as the in-process backend for shardID, routing
// every operation addressed to that shard through be directly instead
// of through the network.
func (e *Engine) WithLocal(shardID int, be backend.Backend) *Engine {
	if e.local == nil {
		e.local = make(map[int]backend.Backend)
	}
	e.local[shardID] = be
	return e
}

// group is one (shard, verb)-homogeneous run of operations, in the
// order they were added to the batch.
type group struct {
	shard   int
	verb    wire.Verb
	indices []int
}

// Execute dispatches every operation in batch, returning one Result per
// operation at the same index it holds in the batch. Groups for
// different shards run concurrently, while the groups of one shard run
// one after another, in the order first encountered; operations within one shard's
// group for one verb are sent as a single wire message and their
// replies are read back in the order they were sent, preserving
// per-shard ordering (§5).
//
// Execute itself only returns a non-nil error for a failure that
// prevents dispatch from starting at all (ctx already canceled, or an
// operation's namespace can't be hashed to a shard because NumShards is
// zero). Per-operation failures — a shard unreachable, a backend
// rejecting one operation — are reported through that operation's
// Result.Err, not through Execute's return value, since one shard's
// trouble should never mask another shard's results.
func (e *Engine) Execute(ctx context.Context, batch *Batch) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.NumShards <= 0 {
		return nil, fmt.Errorf("%w: smd: engine has no shards configured", backend.ErrValidation)
	}

	results := make([]Result, len(batch.ops))
	groups := groupOps(batch.ops, e.NumShards)
	// One shard's groups share a pooled connection, so they must not
	// interleave their requests and reply reads.
	byShard := make(map[int][]group)
	for _, g := range groups {
		byShard[g.shard] = append(byShard[g.shard], g)
	}

	eg, gctx := errgroup.WithContext(ctx)
	for _, gs := range byShard {
		gs := gs
		eg.Go(func() error {
			for _, g := range gs {
				e.runGroup(gctx, batch.ops, g, results)
			}
			return nil
		})
	}
	// eg.Wait's error is always nil: runGroup never returns an error,
	// it records failures into results. Waiting still blocks until
	// every group finishes.
	_ = eg.Wait()
	return results, nil
}

// groupOps partitions ops into (shard, verb)-homogeneous groups,
// preserving the order groups are first encountered and the relative
// order of operations within each group.
func groupOps(ops []Operation, numShards int) []group {
	var order []group
	index := make(map[[2]int]int) // (shard, verb) -> position in order

	for i, op := range ops {
		shard := StableHash(op.namespace, numShards)
		key := [2]int{shard, int(op.verb)}
		if pos, ok := index[key]; ok {
			order[pos].indices = append(order[pos].indices, i)
			continue
		}
		index[key] = len(order)
		order = append(order, group{shard: shard, verb: op.verb, indices: []int{i}})
	}
	return order
}

// runGroup executes one shard/verb group, writing each member
// operation's outcome into results at its original batch index.
func (e *Engine) runGroup(ctx context.Context, ops []Operation, g group, results []Result) {
	if err := ctx.Err(); err != nil {
		fail(results, g.indices, err)
		return
	}

	if be, ok := e.local[g.shard]; ok {
		e.runGroupLocal(be, ops, g, results)
		return
	}
	e.runGroupRemote(ctx, ops, g, results)
}

// runGroupLocal executes a group directly against an in-process
// backend, in order, with no wire encoding at all.
func (e *Engine) runGroupLocal(be backend.Backend, ops []Operation, g group, results []Result) {
	for _, i := range g.indices {
		op := ops[i]
		switch g.verb {
		case wire.VerbApplyScheme:
			results[i] = Result{Err: be.ApplyScheme(op.namespace, op.schemeDoc)}
		case wire.VerbGetScheme:
			doc, err := be.GetScheme(op.namespace)
			results[i] = Result{SchemeDoc: doc, Found: err == nil, Err: err}
		case wire.VerbInsert:
			results[i] = Result{Err: be.Insert(op.namespace, op.key, op.valuesDoc)}
		case wire.VerbUpdate:
			results[i] = Result{Err: be.Update(op.namespace, op.key, op.valuesDoc)}
		case wire.VerbDelete:
			results[i] = Result{Err: be.Delete(op.namespace, op.key)}
		case wire.VerbGet:
			doc, err := be.Get(op.namespace, op.key)
			results[i] = Result{ValuesDoc: doc, Found: err == nil, Err: err}
		default:
			results[i] = Result{Err: fmt.Errorf("%w: smd: unsupported verb %s", backend.ErrValidation, g.verb)}
		}
	}
}

// runGroupRemote sends one wire message carrying every operation in g,
// in order, then reads back one reply fragment per operation. Any
// send/receive failure evicts the pooled connection (it may be left in
// a desynchronized state) and fails every operation in the group with
// %w ErrProtocol; it never touches other groups' results.
func (e *Engine) runGroupRemote(ctx context.Context, ops []Operation, g group, results []Result) {
	addr, err := e.Router.AddrForShard(g.shard)
	if err != nil {
		fail(results, g.indices, err)
		return
	}

	conn, err := e.Pool.Get(addr)
	if err != nil {
		fail(results, g.indices, fmt.Errorf("%w: smd: acquire connection to shard %d: %v", backend.ErrProtocol, g.shard, err))
		return
	}

	payloads := make([][]byte, len(g.indices))
	for i, idx := range g.indices {
		payloads[i] = encodeOp(g.verb, ops[idx])
	}
	header := wire.RequestHeader{Verb: g.verb, Semantics: e.Semantics, OpCount: uint32(len(g.indices))}

	if err := conn.SendRequest(header, payloads); err != nil {
		e.Pool.Evict(addr)
		fail(results, g.indices, fmt.Errorf("%w: smd: send to shard %d: %v", backend.ErrProtocol, g.shard, err))
		return
	}

	for _, idx := range g.indices {
		if err := ctx.Err(); err != nil {
			e.Pool.Evict(addr)
			fail(results, g.indices, err)
			return
		}
		result, err := readReply(conn, g.verb, ops[idx])
		if err != nil {
			e.Pool.Evict(addr)
			fail(results, g.indices, fmt.Errorf("%w: smd: read reply from shard %d: %v", backend.ErrProtocol, g.shard, err))
			return
		}
		results[idx] = result
	}
}

func encodeOp(verb wire.Verb, op Operation) []byte {
	switch verb {
	case wire.VerbApplyScheme:
		return wire.EncodeApplySchemeOp(wire.ApplySchemeOp{Namespace: op.namespace, SchemeDoc: op.schemeDoc})
	case wire.VerbGetScheme:
		return wire.EncodeGetSchemeOp(wire.GetSchemeOp{Namespace: op.namespace})
	case wire.VerbInsert, wire.VerbUpdate:
		return wire.EncodeValuesOp(wire.ValuesOp{Namespace: op.namespace, Key: op.key, ValuesDoc: op.valuesDoc})
	case wire.VerbDelete, wire.VerbGet:
		return wire.EncodeKeyOp(wire.KeyOp{Namespace: op.namespace, Key: op.key})
	default:
		return nil
	}
}

func readReply(conn *transport.Conn, verb wire.Verb, op Operation) (Result, error) {
	switch verb {
	case wire.VerbApplyScheme, wire.VerbInsert, wire.VerbUpdate, wire.VerbDelete:
		ok, err := conn.ReadOKReply()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Err: operationFailedErr(verb, op)}, nil
		}
		return Result{}, nil

	case wire.VerbGetScheme:
		doc, found, err := conn.ReadDocReply()
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{Err: fmt.Errorf("%w: smd: namespace %q has no applied scheme", backend.ErrNamespaceUnknown, op.namespace)}, nil
		}
		return Result{SchemeDoc: doc, Found: true}, nil

	case wire.VerbGet:
		doc, found, err := conn.ReadDocReply()
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{Err: fmt.Errorf("%w: smd: %q/%q not found", backend.ErrRecordNotFound, op.namespace, op.key)}, nil
		}
		return Result{ValuesDoc: doc, Found: true}, nil

	default:
		return Result{}, fmt.Errorf("%w: smd: unsupported verb %s", backend.ErrValidation, verb)
	}
}

// operationFailedErr reconstructs a plausible failure category for a
// bare ok=false reply: the wire protocol's one-byte ok/fail fragment
// (§6) does not carry the backend's specific error, so the engine
// reports the closest general category rather than inventing detail it
// was never told.
func operationFailedErr(verb wire.Verb, op Operation) error {
	return fmt.Errorf("%w: smd: %s on %q/%q failed", backend.ErrBackend, verb, op.namespace, op.key)
}

func fail(results []Result, indices []int, err error) {
	for _, i := range indices {
		results[i] = Result{Err: err}
	}
}
