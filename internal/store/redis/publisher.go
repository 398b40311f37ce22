// Package redis publishes strategy signals and timeframe snapshots to Redis
// so dashboards and other processes can follow the bot without touching its
// database.
//
// Key layout:
//
//	signal:{strategy}     PUBLISH channel carrying SignalEvent JSON
//	timeframe:{strategy}  latest price snapshot (JSON ticks), with TTL
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

const (
	defaultSnapshotTTL = 30 * time.Minute
	defaultMaxPending  = 1000
	flushTimeout       = 5 * time.Second
)

// Config configures the publisher connection.
type Config struct {
	Addr        string // Redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	SnapshotTTL time.Duration
}

// client is the subset of *goredis.Client the publisher uses.
type client interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	Close() error
}

// SignalEvent is the payload published for every signal a strategy emits.
type SignalEvent struct {
	Strategy string          `json:"strategy"`
	Signal   model.Signal    `json:"signal"`
	Exit     bool            `json:"exit"`
	TradeID  int64           `json:"trade_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

type snapshotTick struct {
	Time  time.Time       `json:"t"`
	Value decimal.Decimal `json:"v"`
}

// Publisher writes through a CircuitBreaker. Signals published while the
// breaker is open are buffered and replayed once it closes; snapshots are
// dropped since the next one supersedes them.
type Publisher struct {
	client client
	cb     *CircuitBreaker
	ttl    time.Duration

	mu      sync.Mutex
	pending []SignalEvent
	maxPend int

	// OnFlush, when set, is called after buffered signals are replayed.
	OnFlush func(count int)
}

// New connects to Redis and pings the server.
func New(cfg Config, cb *CircuitBreaker) (*Publisher, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newPublisher(c, cb, cfg.SnapshotTTL), nil
}

func newPublisher(c client, cb *CircuitBreaker, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	p := &Publisher{client: c, cb: cb, ttl: ttl, maxPend: defaultMaxPending}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// Breaker returns the circuit breaker guarding Redis calls.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// SignalChannel returns the PUBLISH channel for strategy.
func SignalChannel(strategy string) string { return "signal:" + strategy }

// SnapshotKey returns the key holding strategy's latest timeframe.
func SnapshotKey(strategy string) string { return "timeframe:" + strategy }

// PublishSignal publishes ev on its strategy channel. With the breaker open
// the event is buffered and nil is returned.
func (p *Publisher) PublishSignal(ctx context.Context, ev SignalEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	err = p.cb.Execute(func() error {
		return p.client.Publish(ctx, SignalChannel(ev.Strategy), data).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		p.buffer(ev)
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Strategy, err)
	}
	return nil
}

// SaveSnapshot stores ticks as strategy's latest timeframe.
func (p *Publisher) SaveSnapshot(ctx context.Context, strategy string, ticks []timeframe.Tick) error {
	snap := make([]snapshotTick, len(ticks))
	for i, t := range ticks {
		snap[i] = snapshotTick{Time: t.Time, Value: t.Value}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = p.cb.Execute(func() error {
		return p.client.Set(ctx, SnapshotKey(strategy), data, p.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis snapshot %s: %w", strategy, err)
	}
	return nil
}

// Snapshot reads strategy's latest timeframe. A missing or expired key
// returns nil ticks and no error.
func (p *Publisher) Snapshot(ctx context.Context, strategy string) ([]timeframe.Tick, error) {
	var raw string
	err := p.cb.Execute(func() error {
		var err error
		raw, err = p.client.Get(ctx, SnapshotKey(strategy)).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", strategy, err)
	}
	if raw == "" {
		return nil, nil
	}

	var snap []snapshotTick
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", strategy, err)
	}
	ticks := make([]timeframe.Tick, len(snap))
	for i, s := range snap {
		ticks[i] = timeframe.NewTick(s.Time, s.Value)
	}
	return ticks, nil
}

// Ping checks connectivity for health reporting.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PendingCount returns the number of buffered signals.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) buffer(ev SignalEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) >= p.maxPend {
		// Buffer full, drop oldest
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, ev)
}

// flush replays buffered signals directly on the client.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.pending
	p.pending = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	flushed := 0
	for _, ev := range toFlush {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := p.client.Publish(ctx, SignalChannel(ev.Strategy), data).Err(); err != nil {
			log.Printf("[redis] replay signal %s: %v", ev.Strategy, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered signals", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}
