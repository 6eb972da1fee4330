// Package main implements the SMD shard server: one process hosting the
// backend for a single shard, serving the wire protocol of spec.md §6
// over TCP and a small HTTP control surface for health checks and
// operator introspection.
//
// A cluster runs one shard server per shard ID; the coordinator
// (cmd/coordinator) tracks which address currently hosts which shard
// and routes clients there. SMD has no rebalancing or replication
// (spec.md §1 Non-goals), so a shard server's ID is fixed for its whole
// lifetime: restarting it at a new address is the only supported
// topology change, and the coordinator's health monitor simply marks
// the shard unassigned until the server re-registers.
//
// Configuration:
//   - SHARD_ID: this process's shard ID (required)
//   - COORDINATOR_ADDR: coordinator base URL for registration (required
//     unless set via the topology file)
//   - SHARD_LISTEN: wire-protocol listen address (default ":9090")
//   - SHARD_PUBLIC_ADDR: address advertised to the coordinator (default:
//     same as SHARD_LISTEN)
//   - SHARD_BACKEND_PATH: sqlite file backing this shard's records
//     (default "smd-shard-<id>.sqlite")
//   - SMD_CONFIG: optional TOML topology file (internal/config) supplying
//     defaults for the above
package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/smd/internal/backend"
	"github.com/dreamware/smd/internal/backend/sqlbackend"
	"github.com/dreamware/smd/internal/cluster"
	"github.com/dreamware/smd/internal/config"
	"github.com/dreamware/smd/internal/shard"
)

// logFatal is a variable to allow mocking log.Fatal in tests, matching
// the teacher's cmd/node indirection.
var logFatal = log.Fatalf

func main() {
	cfg, err := config.ResolveShardConfig(os.Getenv("SMD_CONFIG"))
	if err != nil {
		logFatal("shard config: %v", err)
		return
	}

	be := sqlbackend.New(backend.DeleteIdempotent)
	if err := be.Init(cfg.BackendPath); err != nil {
		logFatal("shard[%d]: backend init %s: %v", cfg.ShardID, cfg.BackendPath, err)
		return
	}
	defer be.Fini()

	host := shard.NewHost(cfg.ShardID, be)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logFatal("shard[%d]: listen %s: %v", cfg.ShardID, cfg.Listen, err)
		return
	}

	go func() {
		log.Printf("shard[%d] serving wire protocol on %s (backend %s)", cfg.ShardID, cfg.Listen, cfg.BackendPath)
		if err := host.Serve(ln); err != nil {
			log.Printf("shard[%d]: serve stopped: %v", cfg.ShardID, err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
		}{Status: "ok"})
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		handleInfo(cfg, host, w)
	})

	httpSrv := &http.Server{
		Addr:              controlAddr(cfg.Listen),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("shard[%d] control API on %s", cfg.ShardID, httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("shard[%d]: control listen: %v", cfg.ShardID, err)
		}
	}()

	register(context.Background(), cfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("shard[%d]: control server shutdown error: %v", cfg.ShardID, err)
	}
	ln.Close()
	log.Printf("shard[%d] stopped", cfg.ShardID)
}

// controlAddr derives the control HTTP listen address from the wire
// listen address by bumping the port by one, so the two servers never
// collide on a single configured address. Operators who need a specific
// control port can front both with their own reverse proxy; SMD itself
// has no Non-goal forbidding a simpler single-port scheme, but keeping
// the wire protocol (a raw framed binary stream) off the same listener
// as net/http avoids having to sniff the first bytes of a connection.
func controlAddr(wireAddr string) string {
	host, port, err := net.SplitHostPort(wireAddr)
	if err != nil {
		return wireAddr
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return wireAddr
	}
	return net.JoinHostPort(host, strconv.Itoa(p+1))
}

// register announces this shard server to the coordinator, retrying on
// failure to tolerate coordinator startup ordering, matching the
// teacher's cmd/node retry loop.
func register(ctx context.Context, cfg config.ShardConfig) {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: strconv.Itoa(cfg.ShardID), Addr: cfg.Public}}
	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, cfg.CoordinatorAddr+"/register", body, nil)
		if lastErr == nil {
			log.Printf("shard[%d] registered with coordinator @ %s", cfg.ShardID, cfg.CoordinatorAddr)
			return
		}
		log.Printf("shard[%d] register retry %d: %v", cfg.ShardID, i+1, lastErr)
		time.Sleep(400 * time.Millisecond)
	}
	logFatal("shard[%d]: failed to register with coordinator: %v", cfg.ShardID, lastErr)
}

func handleInfo(cfg config.ShardConfig, host *shard.Host, w http.ResponseWriter) {
	stats := host.Stats()
	resp := struct {
		BackendPath string      `json:"backend_path"`
		ShardID     int         `json:"shard_id"`
		Stats       shard.Stats `json:"stats"`
	}{
		ShardID:     cfg.ShardID,
		BackendPath: cfg.BackendPath,
		Stats:       stats,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
