// Package main implements the SMD coordinator: the shard→address
// directory and health monitor clients and shard servers consult to
// find and maintain the cluster's fixed topology.
//
// The coordinator does not sit on the data path. Once a client's
// dispatch engine (internal/smd.Engine) resolves a namespace's shard ID
// and the shard's address, it talks to that shard server directly over
// the wire protocol; the coordinator is only consulted to populate or
// refresh that address resolution, and it periodically health-checks
// every registered shard server so stale addresses are dropped.
//
// SMD has no rebalancing and no replication (spec.md §1 Non-goals): the
// coordinator never reassigns a shard to a different server on its own
// initiative. A shard becomes unassigned only when its server fails
// enough consecutive health checks, and reassigned only when a server
// re-registers for that shard ID (typically the same server restarting
// at the same or a new address).
//
// Configuration:
//   - SHARD_COUNT: fixed number of shards in the cluster (required
//     unless set via the topology file)
//   - COORDINATOR_LISTEN: listen address (default ":8080")
//   - HEALTH_CHECK_INTERVAL: duration between health probes (default "5s")
//   - SMD_CONFIG: optional TOML topology file (internal/config)
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/smd/internal/cluster"
	"github.com/dreamware/smd/internal/config"
	"github.com/dreamware/smd/internal/coordinator"
)

var logFatal = log.Fatalf

func main() {
	cfg, err := config.ResolveCoordinatorConfig(os.Getenv("SMD_CONFIG"))
	if err != nil {
		logFatal("coordinator config: %v", err)
		return
	}

	srv := newServer(cfg.NumShards)

	ctx, cancelHealth := context.WithCancel(context.Background())
	defer cancelHealth()
	go srv.healthMonitor.Start(ctx, srv.registeredShards)

	mux := http.NewServeMux()
	mux.HandleFunc("/register", srv.handleRegister)
	mux.HandleFunc("/shards", srv.handleShards)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("coordinator listening on %s (%d shards)", cfg.Listen, cfg.NumShards)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("stopping health monitor...")
	srv.healthMonitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Println("coordinator stopped")
}

// server holds the coordinator's runtime state: the shard→address
// registry and the health monitor that keeps it current.
type server struct {
	registry      *coordinator.ShardRegistry
	healthMonitor *coordinator.HealthMonitor
}

func newServer(numShards int) *server {
	healthInterval := 5 * time.Second
	if v := os.Getenv("HEALTH_CHECK_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			healthInterval = parsed
		} else {
			log.Printf("ignoring invalid HEALTH_CHECK_INTERVAL %q: %v", v, err)
		}
	}

	srv := &server{
		registry:      coordinator.NewShardRegistry(numShards),
		healthMonitor: coordinator.NewHealthMonitor(healthInterval),
	}

	// A shard that fails enough consecutive health checks is dropped
	// from the registry rather than reassigned: SMD has no standby
	// servers to reassign it to (spec.md §1 Non-goals forbid
	// rebalancing). Clients and shard servers alike see it as
	// unassigned until it re-registers.
	srv.healthMonitor.SetOnUnhealthy(func(shardIDStr string) {
		id, err := strconv.Atoi(shardIDStr)
		if err != nil {
			log.Printf("health monitor: unparseable shard id %q: %v", shardIDStr, err)
			return
		}
		log.Printf("shard %d unhealthy, marking unassigned", id)
		if err := srv.registry.RemoveShard(id); err != nil {
			log.Printf("remove shard %d: %v", id, err)
		}
	})

	return srv
}

// registeredShards adapts the registry's current assignments to the
// []cluster.NodeInfo shape internal/coordinator.HealthMonitor.Start
// expects: one NodeInfo per assigned shard, ID holding the shard ID in
// decimal.
func (s *server) registeredShards() []cluster.NodeInfo {
	assignments := s.registry.GetAllAssignments()
	nodes := make([]cluster.NodeInfo, 0, len(assignments))
	for _, a := range assignments {
		nodes = append(nodes, cluster.NodeInfo{ID: strconv.Itoa(a.ShardID), Addr: a.Addr})
	}
	return nodes
}

// handleRegister processes a shard server's self-announcement.
//
// Endpoint: POST /register
//
// Request body: {"node": {"id": "<shard id>", "addr": "host:port"}}
// where id is the shard server's own shard ID in decimal, not a
// cluster-unique server name — SMD's shard→server mapping is
// one-to-one, so the shard ID doubles as the registration key.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	shardID, err := strconv.Atoi(req.Node.ID)
	if err != nil {
		http.Error(w, "node.id must be a shard ID", http.StatusBadRequest)
		return
	}
	if err := s.registry.AssignShard(shardID, req.Node.Addr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("shard %d registered at %s", shardID, req.Node.Addr)
	w.WriteHeader(http.StatusNoContent)
}

// handleShards lists every shard's current assignment and the total
// configured shard count, for operators and for tests.
//
// Endpoint: GET /shards
func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := struct {
		Assignments []*coordinator.ShardAssignment `json:"assignments"`
		NumShards   int                             `json:"num_shards"`
	}{
		Assignments: s.registry.GetAllAssignments(),
		NumShards:   s.registry.NumShards(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
