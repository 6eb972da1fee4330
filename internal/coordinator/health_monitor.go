// Package coordinator implements the directory and health-monitoring layer
// for an SMD cluster. See doc.go for complete package documentation.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/smd/internal/cluster"
)

// ShardHealth tracks the health status of a single shard server, keyed by
// the shard ID its address is currently assigned to.
type ShardHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	ShardID          string
	Status           string // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int
}

// HealthMonitor periodically polls every currently-assigned shard server's
// /health endpoint and reports shards that stop answering. It does not
// reassign or rebalance anything itself (spec.md §1 Non-goals forbid
// that); SetOnUnhealthy's callback is how a caller (cmd/coordinator) wires
// a dropped shard back into ShardRegistry.
type HealthMonitor struct {
	shards      map[string]*ShardHealth
	checkFunc   func(addr string) error
	onUnhealthy func(shardID string)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that checks each shard's /health
// endpoint every interval, marking a shard unhealthy after 3 consecutive
// failures.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		shards:      make(map[string]*ShardHealth),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetOnUnhealthy sets the callback invoked, in its own goroutine, the
// moment a shard's consecutive failure count crosses maxFailures.
func (h *HealthMonitor) SetOnUnhealthy(callback func(shardID string)) {
	h.onUnhealthy = callback
}

// Start runs the periodic check loop until ctx (or the monitor's own
// internal context, if ctx is nil) is canceled. shardProvider is called
// before every check round to get the current set of assigned shards —
// typically ShardRegistry.GetAllAssignments adapted to []cluster.NodeInfo.
func (h *HealthMonitor) Start(ctx context.Context, shardProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("health monitor started with interval %v", h.interval)

	h.checkAllShards(shardProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAllShards(shardProvider())
		case <-ctx.Done():
			log.Println("health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			log.Println("health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("health monitor stopped")
}

// checkAllShards checks every shard in shards and drops tracking for any
// shard ID no longer present (e.g. already removed from the registry).
func (h *HealthMonitor) checkAllShards(shards []cluster.NodeInfo) {
	current := make(map[string]bool, len(shards))

	for _, s := range shards {
		current[s.ID] = true
		h.checkShard(s)
	}

	h.mu.Lock()
	for shardID := range h.shards {
		if !current[shardID] {
			delete(h.shards, shardID)
			log.Printf("shard %s no longer assigned, dropped from health monitoring", shardID)
		}
	}
	h.mu.Unlock()
}

// checkShard probes one shard server and updates its tracked health,
// invoking onUnhealthy on the transition into the unhealthy state.
func (h *HealthMonitor) checkShard(s cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.shards[s.ID]
	if !exists {
		health = &ShardHealth{
			ShardID:     s.ID,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.shards[s.ID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(s.Addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		log.Printf("health check failed for shard %s (attempt %d/%d): %v",
			s.ID, health.ConsecutiveFails, h.maxFailures, err)

		if health.ConsecutiveFails >= h.maxFailures {
			previousStatus := health.Status
			health.Status = "unhealthy"

			if previousStatus != "unhealthy" && h.onUnhealthy != nil {
				log.Printf("shard %s marked unhealthy after %d failures", s.ID, health.ConsecutiveFails)
				go h.onUnhealthy(s.ID)
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		log.Printf("shard %s recovered", s.ID)
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// healthResponse is the JSON body a shard server's /health endpoint
// returns, matching cmd/shard's handler.
type healthResponse struct {
	Status string `json:"status"`
}

// defaultHealthCheck GETs addr's /health endpoint via cluster.GetJSON
// and fails unless the decoded body reports status "ok".
func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = fmt.Sprintf("http://%s", addr)
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var resp healthResponse
	if err := cluster.GetJSON(ctx, url, &resp); err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("health check returned status %q", resp.Status)
	}
	return nil
}

// GetShardHealth returns a copy of shardID's current health record, or
// nil if it is not being monitored.
func (h *HealthMonitor) GetShardHealth(shardID string) *ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[shardID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllShardHealth returns a copy of every monitored shard's health
// record, keyed by shard ID.
func (h *HealthMonitor) GetAllShardHealth() map[string]*ShardHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*ShardHealth, len(h.shards))
	for id, health := range h.shards {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether shardID is currently tracked as healthy.
func (h *HealthMonitor) IsHealthy(shardID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.shards[shardID]
	return exists && health.Status == "healthy"
}

// SetCheckFunction overrides the default /health probe, for tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}
