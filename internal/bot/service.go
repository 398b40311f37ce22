// Package bot wires the live trading bot from configuration: stores, feed,
// publisher, notifiers, executor and the strategy runner.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"moneymaker/config"
	"moneymaker/internal/execution"
	"moneymaker/internal/feed"
	"moneymaker/internal/metrics"
	"moneymaker/internal/model"
	"moneymaker/internal/notification"
	"moneymaker/internal/runner"
	"moneymaker/internal/store/postgres"
	redisstore "moneymaker/internal/store/redis"
	sqlitestore "moneymaker/internal/store/sqlite"
	"moneymaker/internal/strategy"
	"moneymaker/internal/timeframe"
)

const (
	recordBuffer     = 1024
	livenessInterval = 15 * time.Second
	quoteMaxAge      = time.Second
)

// Service owns every long-lived dependency of the bot.
type Service struct {
	cfg *config.Config

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	server *metrics.Server

	trades    model.TradeStore
	tradePing metrics.Pinger
	prices    *sqlitestore.PriceStore
	publisher *redisstore.Publisher
	stream    *feed.KrakenStream
	kraken    *feed.KrakenClient
	source    feed.PriceSource
	recordCh  chan timeframe.Tick
	runner    *runner.Runner
}

// New opens the stores and connections named by cfg and builds the runner.
// Redis and the notifiers are optional: a failure there is logged and the
// bot runs without them.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := &Service{
		cfg:      cfg,
		prom:     metrics.NewMetrics(reg),
		health:   metrics.NewHealthStatus(),
		recordCh: make(chan timeframe.Tick, recordBuffer),
	}
	svc.server = metrics.NewServer(cfg.App.MetricsAddr, reg, svc.health)

	// ---- SQLite (prices, and trades unless Postgres is selected) ----
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sqlitestore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	svc.prices = sqlitestore.NewPriceStoreFromDB(db)

	switch strings.ToLower(cfg.App.TradeStore) {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			db.Close()
			return nil, err
		}
		svc.trades, svc.tradePing = pg, pg
	default:
		svc.trades = sqlitestore.NewTradeStoreFromDB(db)
		svc.tradePing = metrics.DBPinger(db)
	}

	// ---- Redis publisher ----
	if cfg.Redis.Addr != "" {
		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Printf("[bot] redis circuit breaker %s -> %s", from, to)
			svc.prom.BreakerState(int(to), to == redisstore.StateOpen)
		}
		svc.publisher, err = redisstore.New(redisstore.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			SnapshotTTL: cfg.Redis.SnapshotTTL,
		}, cb)
		if err != nil {
			log.Printf("[bot] WARNING: redis unavailable: %v (continuing without publishing)", err)
			svc.publisher = nil
		} else {
			svc.publisher.OnFlush = func(n int) {
				log.Printf("[bot] replayed %d buffered signals", n)
			}
		}
	}

	// ---- Feed ----
	svc.kraken = feed.NewKrakenClient(cfg.Kraken.BaseURL, cfg.Kraken.Pair, cfg.Kraken.Timeout)
	if cfg.Kraken.Stream {
		svc.stream = feed.NewKrakenStream(cfg.Kraken.WSURL, cfg.Kraken.Symbol)
		svc.stream.OnTick = svc.record
		svc.source = svc.stream
	} else {
		svc.source = newRecordingSource(svc.kraken, svc.record)
	}

	// ---- Strategies, execution, runner ----
	set, err := strategy.Build(cfg, svc.trades)
	if err != nil {
		svc.close()
		return nil, err
	}
	exec := execution.NewPaperExecutor(execution.PaperConfig{
		AssetCode:   cfg.Trade.AssetCode,
		Volume:      cfg.Trade.Volume,
		SlippageBps: cfg.Trade.SlippageBps,
	}, svc.trades)

	rcfg := runner.Config{
		Strategies: set,
		Feed:       svc.source,
		Trades:     svc.trades,
		Executor:   exec,
		Notifier:   notifiers(cfg),
		Metrics:    svc.prom,
		Health:     svc.health,
	}
	if svc.publisher != nil {
		rcfg.Publisher = svc.publisher
	}
	svc.runner, err = runner.New(rcfg)
	if err != nil {
		svc.close()
		return nil, err
	}
	return svc, nil
}

func notifiers(cfg *config.Config) notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if cfg.Telegram.Token != "" {
		tg, err := notification.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("[bot] WARNING: telegram disabled: %v", err)
		} else {
			multi = append(multi, tg)
		}
	}
	if cfg.Webhook.URL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.Webhook.URL, cfg.App.Name))
	}
	return multi
}

// Run starts every subsystem and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[bot] starting moneymaker...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ---- Restore timeframes: Redis snapshot first, then history ----
	if svc.publisher != nil {
		if err := svc.runner.Restore(ctx, svc.publisher); err != nil {
			log.Printf("[bot] snapshot restore: %v", err)
		}
	}
	if cfg.App.SeedHistory {
		if err := svc.runner.Seed(ctx, svc.kraken); err != nil {
			log.Printf("[bot] history seed: %v", err)
		}
	}

	// ---- Start subsystems ----
	svc.server.Start()
	var redisPing metrics.Pinger
	if svc.publisher != nil {
		redisPing = svc.publisher
	}
	svc.health.StartLivenessChecker(ctx, svc.tradePing, redisPing, livenessInterval)

	recordDone := make(chan struct{})
	go func() {
		svc.prices.Record(ctx, cfg.Trade.AssetCode, svc.recordCh)
		close(recordDone)
	}()

	if svc.stream != nil {
		svc.stream.OnReconnect = func() { svc.prom.FeedErrors.Inc() }
		go func() {
			if err := svc.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[bot] stream stopped: %v", err)
			}
		}()
	}

	log.Println("[bot] ╔════════════════════════════════════════════════════╗")
	log.Println("[bot] ║  moneymaker active                                 ║")
	log.Println("[bot] ║                                                    ║")
	log.Println("[bot] ║  [Kraken] → [Timeframes] → [Strategies] → [Paper]  ║")
	log.Printf("[bot] ║  pair %-10s trade store %-10s             ║", cfg.Kraken.Pair, cfg.App.TradeStore)
	log.Println("[bot] ╚════════════════════════════════════════════════════╝")

	err := svc.runner.Run(ctx)

	cancel()
	<-recordDone
	svc.shutdown()
	return err
}

func (svc *Service) record(t timeframe.Tick) {
	select {
	case svc.recordCh <- t:
	default:
		log.Printf("[bot] price record buffer full, dropping tick at %s", t.Time.Format(time.RFC3339))
	}
}

// shutdown stops the metrics server and closes connections.
func (svc *Service) shutdown() {
	log.Println("[bot] shutdown signal received...")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := svc.server.Stop(ctx); err != nil {
		log.Printf("[bot] metrics server shutdown: %v", err)
	}
	svc.close()
	log.Println("[bot] shutdown complete.")
}

func (svc *Service) close() {
	if svc.publisher != nil {
		svc.publisher.Close()
	}
	if _, shared := svc.trades.(*sqlitestore.TradeStore); !shared && svc.trades != nil {
		svc.trades.Close()
	}
	svc.prices.Close()
}

// recordingSource shares one fetched quote between strategies polling within
// maxAge of each other and records each fetched quote once.
type recordingSource struct {
	src    feed.PriceSource
	record func(timeframe.Tick)
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	last    timeframe.Tick
	fetched time.Time
}

func newRecordingSource(src feed.PriceSource, record func(timeframe.Tick)) *recordingSource {
	return &recordingSource{src: src, record: record, maxAge: quoteMaxAge, now: time.Now}
}

func (r *recordingSource) LatestPrice(ctx context.Context) (timeframe.Tick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.fetched.IsZero() && now.Sub(r.fetched) < r.maxAge {
		return r.last, nil
	}
	t, err := r.src.LatestPrice(ctx)
	if err != nil {
		return t, err
	}
	r.last, r.fetched = t, now
	r.record(t)
	return t, nil
}
