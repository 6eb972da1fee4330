// Package integration exercises the end-to-end scenarios of spec.md §8
// against real components wired together in-process: an
// internal/coordinator.ShardRegistry fronted by an HTTP server exactly
// like cmd/coordinator's, a shard.Host serving the wire protocol over a
// real TCP listener exactly like cmd/shard's, and a sqlbackend.Backend
// persisting to a temp-file SQLite database. Unlike the teacher's
// original test/integration, which exec'd built node/coordinator
// binaries and drove them over HTTP, this repo's SMD core is a library
// with its own typed client API, so the equivalent in-process wiring
// (real TCP sockets, real SQLite file, real coordinator registration
// HTTP call) is sufficient to exercise the same distributed behavior
// without a subprocess harness.
package integration

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/backend/sqlbackend"
	"github.com/dreamware/smd/internal/cluster"
	"github.com/dreamware/smd/internal/coordinator"
	"github.com/dreamware/smd/internal/shard"
	"github.com/dreamware/smd/internal/smd"
	"github.com/dreamware/smd/internal/smdtype"
	"github.com/dreamware/smd/internal/transport"
)

const testNamespace = "__t_smd__"

// testCluster bundles a running coordinator HTTP server and a single shard
// server registered against it, resolved into an smd.Engine ready to
// dispatch batches the way a real client would after discovering its
// shard topology.
type testCluster struct {
	coordinator *httptest.Server
	registry    *coordinator.ShardRegistry
	shardAddr   string
	engine      *smd.Engine
}

func newSingleShardCluster(t *testing.T) *testCluster {
	t.Helper()

	registry := coordinator.NewShardRegistry(1)
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var req cluster.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NoError(t, registry.AssignShard(0, req.Node.Addr))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/shards", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(struct {
			Assignments []*coordinator.ShardAssignment `json:"assignments"`
			NumShards   int                            `json:"num_shards"`
		}{registry.GetAllAssignments(), registry.NumShards()}))
	})
	coord := httptest.NewServer(mux)
	t.Cleanup(coord.Close)

	be := sqlbackend.New(backend.DeleteIdempotent)
	require.NoError(t, be.Init(filepath.Join(t.TempDir(), "shard-0.db")))
	t.Cleanup(func() { _ = be.Fini() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	host := shard.NewHost(0, be)
	go host.Serve(ln)

	require.NoError(t, cluster.PostJSON(context.Background(), coord.URL+"/register",
		cluster.RegisterRequest{Node: cluster.NodeInfo{ID: "0", Addr: ln.Addr().String()}}, nil))

	addr, err := registry.AddrForShard(0)
	require.NoError(t, err)

	pool := transport.NewPool()
	t.Cleanup(func() { pool.Close() })

	return &testCluster{
		coordinator: coord,
		registry:    registry,
		shardAddr:   addr,
		engine:      smd.NewEngine(1, registry, pool),
	}
}

func peopleScheme(t *testing.T, namespace string) *smd.Scheme {
	t.Helper()
	s, err := smd.NewScheme(namespace, []smd.Field{
		{Name: "name", Type: smdtype.TagText},
		{Name: "loc", Type: smdtype.TagInteger64},
		{Name: "coverage", Type: smdtype.TagFloat64},
		{Name: "lastrun", Type: smdtype.TagDateTime},
	})
	require.NoError(t, err)
	return s
}

// execOne runs a single-operation batch and returns its sole result,
// mirroring spec.md §8's scenario narration of one call at a time.
func execOne(t *testing.T, tc *testCluster, build func(b *smd.Batch) int) smd.Result {
	t.Helper()
	batch := smd.NewBatch()
	idx := build(batch)
	results, err := tc.engine.Execute(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, batch.Len())
	return results[idx]
}

// TestCoordinatorReportsRegisteredShardAddress verifies that registering
// a shard server through the coordinator's HTTP API makes its address
// resolvable via the registry the dispatch engine consults — the
// "coordinator as directory, not on the data path" design of SPEC_FULL
// §13.
func TestCoordinatorReportsRegisteredShardAddress(t *testing.T) {
	tc := newSingleShardCluster(t)

	resp, err := http.Get(tc.coordinator.URL + "/shards")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Assignments []*coordinator.ShardAssignment `json:"assignments"`
		NumShards   int                             `json:"num_shards"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.NumShards)
	require.Len(t, body.Assignments, 1)
	require.Equal(t, tc.shardAddr, body.Assignments[0].Addr)
}

// TestApplySchemeThenGetScheme covers spec.md §8 scenario 1: applying a
// scheme and retrieving it via a fresh Scheme handle yields the same
// fields in the same order.
func TestApplySchemeThenGetScheme(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)

	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.ApplyScheme(scheme)
		require.NoError(t, err)
		return idx
	})
	require.NoError(t, r.Err)

	r = execOne(t, tc, func(b *smd.Batch) int { return b.GetScheme(testNamespace) })
	require.NoError(t, r.Err)
	require.True(t, r.Found)

	got, err := r.Scheme(testNamespace)
	require.NoError(t, err)
	require.Equal(t, scheme.Fields, got.Fields)
}

// TestInsertThenGet covers spec.md §8 scenario 2.
func TestInsertThenGet(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)
	require.NoError(t, requireApplyScheme(t, tc, scheme))

	lastrun, err := time.Parse(time.RFC3339, "2000-01-01T21:42:42+02:00")
	require.NoError(t, err)

	rec, err := smd.NewRecord(scheme, "__romio__")
	require.NoError(t, err)
	require.NoError(t, rec.SetText("name", "Romeo"))
	require.NoError(t, rec.SetInt64("loc", 4242))
	require.NoError(t, rec.SetFloat64("coverage", 3.14159))
	require.NoError(t, rec.SetDateTime("lastrun", lastrun))

	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.Insert(rec)
		require.NoError(t, err)
		return idx
	})
	require.NoError(t, r.Err)

	r = execOne(t, tc, func(b *smd.Batch) int { return b.Get(testNamespace, "__romio__") })
	require.NoError(t, r.Err)
	require.True(t, r.Found)

	fresh, err := r.Record(scheme, "__romio__")
	require.NoError(t, err)

	name, ok, err := fresh.GetText("name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Romeo", name)

	loc, ok, err := fresh.GetInt64("loc")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4242, loc)

	coverage, ok, err := fresh.GetFloat64("coverage")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 3.14159, coverage, 1e-3)

	gotLastrun, ok, err := fresh.GetDateTime("lastrun")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, lastrun.Equal(gotLastrun))
}

// TestUpdateLeavesOtherFieldsUnchanged covers spec.md §8 scenario 3.
func TestUpdateLeavesOtherFieldsUnchanged(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)
	require.NoError(t, requireApplyScheme(t, tc, scheme))
	require.NoError(t, requireInsertRomeo(t, tc, scheme))

	update, err := smd.NewRecord(scheme, "__romio__")
	require.NoError(t, err)
	require.NoError(t, update.SetText("name", "Julea"))

	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.Update(update)
		require.NoError(t, err)
		return idx
	})
	require.NoError(t, r.Err)

	r = execOne(t, tc, func(b *smd.Batch) int { return b.Get(testNamespace, "__romio__") })
	require.NoError(t, r.Err)
	fresh, err := r.Record(scheme, "__romio__")
	require.NoError(t, err)

	name, _, err := fresh.GetText("name")
	require.NoError(t, err)
	require.Equal(t, "Julea", name)

	loc, _, err := fresh.GetInt64("loc")
	require.NoError(t, err)
	require.EqualValues(t, 4242, loc)

	coverage, _, err := fresh.GetFloat64("coverage")
	require.NoError(t, err)
	require.True(t, math.Abs(coverage-3.14159) < 1e-3)
}

// TestDuplicateInsertFails covers spec.md §8 scenario 4.
func TestDuplicateInsertFails(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)
	require.NoError(t, requireApplyScheme(t, tc, scheme))
	require.NoError(t, requireInsertRomeo(t, tc, scheme))

	dup, err := smd.NewRecord(scheme, "__romio__")
	require.NoError(t, err)
	require.NoError(t, dup.SetText("name", "Impostor"))
	// Every field is set, so the duplicate key is the only reason for
	// Insert to fail.
	require.NoError(t, dup.SetInt64("loc", 1))
	require.NoError(t, dup.SetFloat64("coverage", 1.0))
	require.NoError(t, dup.SetDateTime("lastrun", time.Unix(0, 0).UTC()))

	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.Insert(dup)
		require.NoError(t, err)
		return idx
	})
	require.Error(t, r.Err)

	r = execOne(t, tc, func(b *smd.Batch) int { return b.Get(testNamespace, "__romio__") })
	require.NoError(t, r.Err)
	fresh, err := r.Record(scheme, "__romio__")
	require.NoError(t, err)
	name, _, err := fresh.GetText("name")
	require.NoError(t, err)
	require.Equal(t, "Romeo", name)
}

// TestDeleteThenGetNotFound covers spec.md §8 scenario 5.
func TestDeleteThenGetNotFound(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)
	require.NoError(t, requireApplyScheme(t, tc, scheme))
	require.NoError(t, requireInsertRomeo(t, tc, scheme))

	r := execOne(t, tc, func(b *smd.Batch) int { return b.Delete(testNamespace, "__romio__") })
	require.NoError(t, r.Err)

	r = execOne(t, tc, func(b *smd.Batch) int { return b.Get(testNamespace, "__romio__") })
	require.ErrorIs(t, r.Err, backend.ErrRecordNotFound)
}

// TestWrongTypeSetterLeavesRecordUnchanged covers spec.md §8 scenario 6.
func TestWrongTypeSetterLeavesRecordUnchanged(t *testing.T) {
	tc := newSingleShardCluster(t)
	scheme := peopleScheme(t, testNamespace)
	require.NoError(t, requireApplyScheme(t, tc, scheme))
	require.NoError(t, requireInsertRomeo(t, tc, scheme))

	rec, err := smd.NewRecord(scheme, "__romio__")
	require.NoError(t, err)
	err = rec.SetInt64("name", 5)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "name"))

	r := execOne(t, tc, func(b *smd.Batch) int { return b.Get(testNamespace, "__romio__") })
	require.NoError(t, r.Err)
	fresh, err := r.Record(scheme, "__romio__")
	require.NoError(t, err)
	name, _, err := fresh.GetText("name")
	require.NoError(t, err)
	require.Equal(t, "Romeo", name)
}

func requireApplyScheme(t *testing.T, tc *testCluster, scheme *smd.Scheme) error {
	t.Helper()
	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.ApplyScheme(scheme)
		require.NoError(t, err)
		return idx
	})
	return r.Err
}

func requireInsertRomeo(t *testing.T, tc *testCluster, scheme *smd.Scheme) error {
	t.Helper()
	lastrun, err := time.Parse(time.RFC3339, "2000-01-01T21:42:42+02:00")
	require.NoError(t, err)

	rec, err := smd.NewRecord(scheme, "__romio__")
	require.NoError(t, err)
	require.NoError(t, rec.SetText("name", "Romeo"))
	require.NoError(t, rec.SetInt64("loc", 4242))
	require.NoError(t, rec.SetFloat64("coverage", 3.14159))
	require.NoError(t, rec.SetDateTime("lastrun", lastrun))

	r := execOne(t, tc, func(b *smd.Batch) int {
		idx, err := b.Insert(rec)
		require.NoError(t, err)
		return idx
	})
	return r.Err
}
