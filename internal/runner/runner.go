// Package runner drives the live strategies: one polling loop per entry
// strategy, each owning a private price Timeframe.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"moneymaker/internal/execution"
	"moneymaker/internal/feed"
	"moneymaker/internal/logger"
	"moneymaker/internal/metrics"
	"moneymaker/internal/model"
	"moneymaker/internal/notification"
	redisstore "moneymaker/internal/store/redis"
	"moneymaker/internal/strategy"
	"moneymaker/internal/timeframe"
)

// Publisher receives signals and timeframe snapshots.
type Publisher interface {
	PublishSignal(ctx context.Context, ev redisstore.SignalEvent) error
	SaveSnapshot(ctx context.Context, strategy string, ticks []timeframe.Tick) error
}

// SnapshotReader returns the last published timeframe of a strategy, or nil
// when none is stored.
type SnapshotReader interface {
	Snapshot(ctx context.Context, strategy string) ([]timeframe.Tick, error)
}

// Config wires the runner. Strategies, Feed, Trades and Executor are
// required; the rest are optional.
type Config struct {
	Strategies *strategy.Set
	Feed       feed.PriceSource
	Trades     model.TradeStore
	Executor   execution.Executor

	Publisher Publisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
}

// Runner evaluates every entry strategy on its own period.
type Runner struct {
	cfg   Config
	slots []*slot
	now   func() time.Time
}

type slot struct {
	entry strategy.Entry
	exit  strategy.Exit

	mu sync.Mutex
	tf *timeframe.Timeframe
}

// New validates cfg and allocates one Timeframe per entry strategy.
func New(cfg Config) (*Runner, error) {
	if cfg.Strategies == nil || cfg.Feed == nil || cfg.Trades == nil || cfg.Executor == nil {
		return nil, errors.New("runner: strategies, feed, trades and executor are required")
	}
	r := &Runner{cfg: cfg, now: time.Now}
	for _, e := range cfg.Strategies.Entries {
		exit, ok := cfg.Strategies.ExitFor(e)
		if !ok {
			return nil, fmt.Errorf("runner: %s has no exit strategy %q", e.Name(), e.ExitStrategy())
		}
		tf, err := timeframe.New(e.TimeframeSize())
		if err != nil {
			return nil, fmt.Errorf("runner: %s: %w", e.Name(), err)
		}
		r.slots = append(r.slots, &slot{entry: e, exit: exit, tf: tf})
	}
	return r, nil
}

// Restore seeds each empty Timeframe from its last published snapshot.
func (r *Runner) Restore(ctx context.Context, snapshots SnapshotReader) error {
	var errs []error
	for _, s := range r.slots {
		name := s.entry.Name()
		ticks, err := snapshots.Snapshot(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", name, err))
			continue
		}
		if n := s.seed(ticks); n > 0 {
			log.Printf("[runner] %s: restored %d ticks from snapshot", name, n)
		}
	}
	return errors.Join(errs...)
}

// Seed pre-fills each Timeframe from history, covering one full timeframe
// of the strategy's period before now. Slots already holding ticks are
// left alone.
func (r *Runner) Seed(ctx context.Context, history feed.HistorySource) error {
	var errs []error
	for _, s := range r.slots {
		name := s.entry.Name()
		period := s.entry.PeriodLength()
		since := r.now().Add(-period * time.Duration(s.entry.TimeframeSize()))

		ticks, err := history.History(ctx, period, since)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %s: %w", name, err))
			continue
		}
		n := s.seed(ticks)
		log.Printf("[runner] %s: seeded %d/%d ticks from history", name, n, s.entry.TimeframeSize())
	}
	return errors.Join(errs...)
}

func (s *slot) seed(ticks []timeframe.Tick) int {
	if len(ticks) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tf.Size() > 0 {
		return 0
	}
	tf, err := timeframe.NewWithTicks(s.tf.Cap(), ticks)
	if err != nil {
		return 0
	}
	s.tf = tf
	return tf.Size()
}

// Timeframe returns a copy of strategy's current ticks.
func (r *Runner) Timeframe(strategy string) ([]timeframe.Tick, bool) {
	for _, s := range r.slots {
		if s.entry.Name() == strategy {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.tf.Ticks(), true
		}
	}
	return nil, false
}

// Run starts one loop per strategy and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.slots) == 0 {
		return errors.New("runner: no strategies enabled")
	}

	var wg sync.WaitGroup
	for _, s := range r.slots {
		wg.Add(1)
		go func(s *slot) {
			defer wg.Done()
			r.loop(ctx, s)
		}(s)
	}
	wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context, s *slot) {
	name := s.entry.Name()
	period := s.entry.PeriodLength()
	log.Printf("[runner] %s: evaluating every %s over %d ticks (exit %s)", name, period, s.entry.TimeframeSize(), s.exit.Name())

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[runner] %s: stopped", name)
			return
		case <-ticker.C:
			// Errors are logged inside step; the loop keeps going.
			_ = r.step(ctx, s)
		}
	}
}

// step runs one cycle: fetch, append, then exits and entry once the
// Timeframe is full.
func (r *Runner) step(ctx context.Context, s *slot) error {
	name := s.entry.Name()

	tick, err := r.cfg.Feed.LatestPrice(ctx)
	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.FeedErrors.Inc()
		}
		if r.cfg.Health != nil {
			r.cfg.Health.RecordFeedError()
		}
		log.Printf("[runner] %s: price fetch failed: %v", name, err)
		return err
	}
	if r.cfg.Health != nil {
		r.cfg.Health.RecordTick(tick.Time)
	}

	ticks, view, err := s.add(tick)
	if err != nil {
		return err
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.TimeframeFill.WithLabelValues(name).Set(float64(len(ticks)))
	}
	if r.cfg.Publisher != nil {
		if err := r.cfg.Publisher.SaveSnapshot(ctx, name, ticks); err != nil {
			log.Printf("[runner] %s: snapshot failed: %v", name, err)
		}
	}
	if view == nil {
		slog.Debug("warming up", "strategy", name, "ticks", len(ticks), "size", s.entry.TimeframeSize())
		return nil
	}

	ctx = logger.WithTraceID(ctx, logger.CycleID(name, tick.Time))
	start := time.Now()
	defer func() {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.Evaluations.WithLabelValues(name).Inc()
			r.cfg.Metrics.EvaluationDur.Observe(time.Since(start).Seconds())
		}
		if r.cfg.Health != nil {
			r.cfg.Health.RecordEvaluation(name, tick.Time)
		}
	}()

	exitErr := r.exits(ctx, s, view, tick)
	entryErr := r.entry(ctx, s, view, tick)
	return errors.Join(exitErr, entryErr)
}

// add appends tick under the slot lock and returns the resulting ticks.
// Once the Timeframe is full it also returns a private copy to evaluate, so
// the lock is not held across store, publish or notify calls.
func (s *slot) add(tick timeframe.Tick) ([]timeframe.Tick, *timeframe.Timeframe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticks := s.tf.Add(tick)
	if !s.tf.IsFull() {
		return ticks, nil, nil
	}
	view, err := s.tf.Subframe(s.tf.Size())
	if err != nil {
		return nil, nil, err
	}
	return ticks, view, nil
}

func (r *Runner) exits(ctx context.Context, s *slot, tf *timeframe.Timeframe, tick timeframe.Tick) error {
	name := s.entry.Name()
	open, err := r.cfg.Trades.OpenTrades(ctx, name)
	if err != nil {
		r.evalError(ctx, name, fmt.Errorf("open trades: %w", err))
		return err
	}

	var errs []error
	for _, t := range open {
		sig, err := s.exit.Evaluate(ctx, t.ID, tf)
		if err != nil {
			r.evalError(ctx, s.exit.Name(), err)
			errs = append(errs, err)
			continue
		}
		if sig.IsNone() {
			continue
		}
		r.signal(ctx, s.exit.Name(), sig)

		closed, err := r.cfg.Executor.Close(ctx, t, sig, tick)
		if err != nil {
			r.evalError(ctx, s.exit.Name(), fmt.Errorf("close trade %d: %w", t.ID, err))
			errs = append(errs, err)
			continue
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.TradesClosed.Inc()
		}
		r.publish(ctx, redisstore.SignalEvent{
			Strategy: s.exit.Name(),
			Signal:   sig,
			Exit:     true,
			TradeID:  closed.ID,
			Price:    tick.Value,
			Time:     tick.Time,
		})
		r.notify(ctx, notification.TradeClosed(closed))
	}
	return errors.Join(errs...)
}

func (r *Runner) entry(ctx context.Context, s *slot, tf *timeframe.Timeframe, tick timeframe.Tick) error {
	name := s.entry.Name()
	sig, err := s.entry.Evaluate(tf)
	if err != nil {
		r.evalError(ctx, name, err)
		return err
	}
	if sig.IsNone() {
		return nil
	}
	r.signal(ctx, name, sig)

	t, err := r.cfg.Executor.Open(ctx, execution.OpenRequest{
		Strategy:     name,
		ExitStrategy: s.exit.Name(),
		PeriodLength: s.entry.PeriodLength(),
		Signal:       sig,
		Tick:         tick,
	})
	if err != nil {
		r.evalError(ctx, name, fmt.Errorf("open trade: %w", err))
		return err
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.TradesOpened.Inc()
	}
	r.publish(ctx, redisstore.SignalEvent{
		Strategy: name,
		Signal:   sig,
		TradeID:  t.ID,
		Price:    tick.Value,
		Time:     tick.Time,
	})
	r.notify(ctx, notification.TradeOpened(t))
	return nil
}

func (r *Runner) signal(ctx context.Context, strategy string, sig model.Signal) {
	slog.Info("signal", append([]any{"strategy", strategy, "signal", sig.String()}, logger.LogWithTrace(ctx)...)...)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.Signals.WithLabelValues(strategy, sig.String()).Inc()
	}
}

func (r *Runner) evalError(ctx context.Context, strategy string, err error) {
	slog.Error("evaluation failed", append([]any{"strategy", strategy, "err", err}, logger.LogWithTrace(ctx)...)...)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.EvaluationErrors.WithLabelValues(strategy).Inc()
	}
}

func (r *Runner) publish(ctx context.Context, ev redisstore.SignalEvent) {
	if r.cfg.Publisher == nil {
		return
	}
	if err := r.cfg.Publisher.PublishSignal(ctx, ev); err != nil {
		log.Printf("[runner] %s: publish failed: %v", ev.Strategy, err)
	}
}

func (r *Runner) notify(ctx context.Context, alert notification.Alert) {
	if r.cfg.Notifier == nil {
		return
	}
	if err := r.cfg.Notifier.Send(ctx, alert); err != nil {
		log.Printf("[runner] notify failed: %v", err)
	}
}
