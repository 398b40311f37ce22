package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency whose reachability can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// DBPinger probes a database/sql handle.
func DBPinger(db *sql.DB) Pinger {
	return PingFunc(db.PingContext)
}

// HealthStatus tracks the bot's dependencies and strategy loops.
type HealthStatus struct {
	mu sync.RWMutex

	FeedOK        bool
	LastTickTime  time.Time
	StoreOK       bool
	StoreLatency  time.Duration
	RedisEnabled  bool
	RedisOK       bool
	RedisLatency  time.Duration
	LastEvaluated map[string]time.Time
	LastCheckAt   time.Time
	StartedAt     time.Time

	now func() time.Time
}

// NewHealthStatus returns a status with nothing yet observed.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		LastEvaluated: make(map[string]time.Time),
		StartedAt:     time.Now(),
		now:           time.Now,
	}
}

// RecordTick marks a successful price fetch.
func (h *HealthStatus) RecordTick(t time.Time) {
	h.mu.Lock()
	h.FeedOK = true
	h.LastTickTime = t
	h.mu.Unlock()
}

// RecordFeedError marks the feed as failing until the next tick.
func (h *HealthStatus) RecordFeedError() {
	h.mu.Lock()
	h.FeedOK = false
	h.mu.Unlock()
}

// RecordEvaluation stores when strategy last completed an evaluation.
func (h *HealthStatus) RecordEvaluation(strategy string, at time.Time) {
	h.mu.Lock()
	h.LastEvaluated[strategy] = at
	h.mu.Unlock()
}

// Check probes the trade store and, when non-nil, Redis.
func (h *HealthStatus) Check(ctx context.Context, store, redis Pinger) {
	storeOK, storeLat := probe(ctx, store)
	var redisOK bool
	var redisLat time.Duration
	if redis != nil {
		redisOK, redisLat = probe(ctx, redis)
	}

	h.mu.Lock()
	h.StoreOK, h.StoreLatency = storeOK, storeLat
	h.RedisEnabled = redis != nil
	h.RedisOK, h.RedisLatency = redisOK, redisLat
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (bool, time.Duration) {
	if p == nil {
		return false, 0
	}
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, time.Since(start)
}

// StartLivenessChecker runs Check every interval until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store, redis Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.Check(probeCtx, store, redis)
			cancel()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

type healthReport struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	FeedOK        bool              `json:"feed_ok"`
	LastTickTime  string            `json:"last_tick_time,omitempty"`
	TickAge       string            `json:"tick_age,omitempty"`
	StoreOK       bool              `json:"store_ok"`
	StoreLatency  float64           `json:"store_latency_ms"`
	RedisEnabled  bool              `json:"redis_enabled"`
	RedisOK       bool              `json:"redis_ok"`
	RedisLatency  float64           `json:"redis_latency_ms"`
	LastEvaluated map[string]string `json:"last_evaluated"`
	LastCheckAt   string            `json:"last_check_at,omitempty"`
}

// ServeHTTP handles the /healthz endpoint.
// The store is required: without it the bot is unhealthy. A failing feed or
// Redis degrades it.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	report := healthReport{
		Status:        "healthy",
		Uptime:        now.Sub(h.StartedAt).Round(time.Second).String(),
		FeedOK:        h.FeedOK,
		StoreOK:       h.StoreOK,
		StoreLatency:  ms(h.StoreLatency),
		RedisEnabled:  h.RedisEnabled,
		RedisOK:       h.RedisOK,
		RedisLatency:  ms(h.RedisLatency),
		LastEvaluated: make(map[string]string, len(h.LastEvaluated)),
	}
	if !h.LastTickTime.IsZero() {
		report.LastTickTime = h.LastTickTime.Format(time.RFC3339)
		report.TickAge = now.Sub(h.LastTickTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		report.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	for name, at := range h.LastEvaluated {
		report.LastEvaluated[name] = at.Format(time.RFC3339)
	}

	code := http.StatusOK
	switch {
	case !h.StoreOK:
		report.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !h.FeedOK || (h.RedisEnabled && !h.RedisOK):
		report.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer is the registry
// whose metrics /metrics serves.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
