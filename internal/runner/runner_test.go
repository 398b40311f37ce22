package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymaker/internal/execution"
	"moneymaker/internal/metrics"
	"moneymaker/internal/model"
	"moneymaker/internal/notification"
	redisstore "moneymaker/internal/store/redis"
	"moneymaker/internal/strategy"
	"moneymaker/internal/timeframe"
	"moneymaker/internal/trade"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func tick(v int64, i int) timeframe.Tick {
	return timeframe.NewTick(t0.Add(time.Duration(i)*time.Second), decimal.NewFromInt(v))
}

// scriptedFeed returns prices in order, then repeats the last one.
type scriptedFeed struct {
	mu    sync.Mutex
	ticks []timeframe.Tick
	err   error
	n     int
}

func (f *scriptedFeed) LatestPrice(context.Context) (timeframe.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return timeframe.Tick{}, f.err
	}
	i := f.n
	if i >= len(f.ticks) {
		i = len(f.ticks) - 1
	}
	f.n++
	return f.ticks[i], nil
}

// scriptedEntry returns one signal per evaluation, then SignalNone.
type scriptedEntry struct {
	mu      sync.Mutex
	size    int
	period  time.Duration
	signals []model.Signal
	err     error
	calls   int
	seen    []int
}

func (e *scriptedEntry) Name() string                { return "GoldenCross" }
func (e *scriptedEntry) PeriodLength() time.Duration { return e.period }
func (e *scriptedEntry) TimeframeSize() int          { return e.size }
func (e *scriptedEntry) ExitStrategy() string        { return "TrailingStop" }

func (e *scriptedEntry) Evaluate(tf *timeframe.Timeframe) (model.Signal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, tf.Size())
	e.calls++
	if e.err != nil {
		return model.SignalNone, e.err
	}
	if e.calls <= len(e.signals) {
		return e.signals[e.calls-1], nil
	}
	return model.SignalNone, nil
}

func (e *scriptedEntry) evaluations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// closeOn closes every trade it is asked about once armed.
type closeOn struct {
	mu    sync.Mutex
	armed bool
	asked []int64
}

func (x *closeOn) Name() string { return "TrailingStop" }

func (x *closeOn) Evaluate(_ context.Context, id int64, _ *timeframe.Timeframe) (model.Signal, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.asked = append(x.asked, id)
	if x.armed {
		return model.SignalSell, nil
	}
	return model.SignalNone, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	events    []redisstore.SignalEvent
	snapshots map[string][]timeframe.Tick
}

func (p *recordingPublisher) PublishSignal(_ context.Context, ev redisstore.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) SaveSnapshot(_ context.Context, strategy string, ticks []timeframe.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshots == nil {
		p.snapshots = make(map[string][]timeframe.Tick)
	}
	p.snapshots[strategy] = ticks
	return nil
}

func (p *recordingPublisher) Snapshot(_ context.Context, strategy string) ([]timeframe.Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots[strategy], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (n *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	runner   *Runner
	feed     *scriptedFeed
	entry    *scriptedEntry
	exit     *closeOn
	trades   *trade.MemoryStore
	pub      *recordingPublisher
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus
}

func newFixture(t *testing.T, size int, prices ...int64) *fixture {
	t.Helper()
	f := &fixture{
		feed:     &scriptedFeed{},
		entry:    &scriptedEntry{size: size, period: time.Second},
		exit:     &closeOn{},
		trades:   trade.NewMemoryStore(),
		pub:      &recordingPublisher{},
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		health:   metrics.NewHealthStatus(),
	}
	for i, p := range prices {
		f.feed.ticks = append(f.feed.ticks, tick(p, i))
	}
	set := &strategy.Set{
		Entries: []strategy.Entry{f.entry},
		Exits:   map[string]strategy.Exit{"TrailingStop": f.exit},
	}
	exec := execution.NewPaperExecutor(execution.PaperConfig{AssetCode: "XBTGBP", Volume: decimal.NewFromInt(1)}, f.trades)

	r, err := New(Config{
		Strategies: set,
		Feed:       f.feed,
		Trades:     f.trades,
		Executor:   exec,
		Publisher:  f.pub,
		Notifier:   f.notifier,
		Metrics:    f.metrics,
		Health:     f.health,
	})
	require.NoError(t, err)
	r.now = func() time.Time { return t0 }
	f.runner = r
	return f
}

func (f *fixture) step(t *testing.T) error {
	t.Helper()
	return f.runner.step(context.Background(), f.runner.slots[0])
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_UnknownExit(t *testing.T) {
	set := &strategy.Set{Entries: []strategy.Entry{&scriptedEntry{size: 3, period: time.Second}}}
	_, err := New(Config{Strategies: set, Feed: &scriptedFeed{}, Trades: trade.NewMemoryStore(), Executor: execution.NewPaperExecutor(execution.PaperConfig{}, trade.NewMemoryStore())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TrailingStop")
}

func TestStep_WarmsUpBeforeEvaluating(t *testing.T) {
	f := newFixture(t, 3, 100, 101, 102, 103)

	require.NoError(t, f.step(t))
	require.NoError(t, f.step(t))
	assert.Zero(t, f.entry.evaluations())
	assert.Len(t, f.pub.snapshots["GoldenCross"], 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TimeframeFill.WithLabelValues("GoldenCross")))

	require.NoError(t, f.step(t))
	require.NoError(t, f.step(t))
	assert.Equal(t, 2, f.entry.evaluations())
	assert.Equal(t, []int{3, 3}, f.entry.seen)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Evaluations.WithLabelValues("GoldenCross")))
}

func TestStep_OpensThenClosesTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, 100, 100, 110)
	f.entry.signals = []model.Signal{model.SignalBuy}

	require.NoError(t, f.step(t))
	require.NoError(t, f.step(t))

	open, err := f.trades.OpenTrades(ctx, "GoldenCross")
	require.NoError(t, err)
	require.Len(t, open, 1)
	entry, _ := open[0].Entry()
	assert.Equal(t, model.SignalBuy, entry.Signal)
	assert.True(t, entry.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "TrailingStop", open[0].ExitStrategy)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesOpened))

	f.exit.armed = true
	require.NoError(t, f.step(t))

	open, _ = f.trades.OpenTrades(ctx, "GoldenCross")
	assert.Empty(t, open)
	closed, _ := f.trades.ClosedTrades(ctx)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].Profit)
	assert.Equal(t, "9.52380952", closed[0].Profit.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesClosed))
	assert.Equal(t, []int64{closed[0].ID}, f.exit.asked)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, redisstore.SignalEvent{
		Strategy: "GoldenCross", Signal: model.SignalBuy, TradeID: closed[0].ID,
		Price: decimal.NewFromInt(100), Time: t0.Add(time.Second),
	}, f.pub.events[0])
	assert.True(t, f.pub.events[1].Exit)
	assert.Equal(t, "TrailingStop", f.pub.events[1].Strategy)
	assert.Equal(t, model.SignalSell, f.pub.events[1].Signal)

	require.Len(t, f.notifier.alerts, 2)
	assert.Contains(t, f.notifier.alerts[0].Title, "opened")
	assert.Contains(t, f.notifier.alerts[1].Title, "closed")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Signals.WithLabelValues("GoldenCross", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Signals.WithLabelValues("TrailingStop", "SELL")))
}

func TestStep_KeepsEveryOpenTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, 100, 101, 102)
	f.entry.signals = []model.Signal{model.SignalBuy, model.SignalBuy}

	for i := 0; i < 3; i++ {
		require.NoError(t, f.step(t))
	}
	open, err := f.trades.OpenTrades(ctx, "GoldenCross")
	require.NoError(t, err)
	assert.Len(t, open, 2)
	assert.Len(t, f.exit.asked, 1)
}

func TestStep_FeedError(t *testing.T) {
	f := newFixture(t, 2, 100)
	f.feed.err = errors.New("kraken down")

	assert.Error(t, f.step(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FeedErrors))
	assert.False(t, f.health.FeedOK)
	ticks, _ := f.runner.Timeframe("GoldenCross")
	assert.Empty(t, ticks)
}

func TestStep_EntryErrorIsCounted(t *testing.T) {
	f := newFixture(t, 2, 100, 101)
	f.entry.err = errors.New("bad series")

	require.NoError(t, f.step(t))
	assert.Error(t, f.step(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EvaluationErrors.WithLabelValues("GoldenCross")))
	assert.Contains(t, f.health.LastEvaluated, "GoldenCross")
}

type fakeHistory struct {
	ticks    []timeframe.Tick
	interval time.Duration
	since    time.Time
}

func (h *fakeHistory) History(_ context.Context, interval time.Duration, since time.Time) ([]timeframe.Tick, error) {
	h.interval, h.since = interval, since
	return h.ticks, nil
}

func TestSeed_FillsFromHistory(t *testing.T) {
	f := newFixture(t, 3, 200)
	h := &fakeHistory{ticks: []timeframe.Tick{tick(5, 5), tick(1, 1), tick(4, 4), tick(2, 2), tick(3, 3)}}

	require.NoError(t, f.runner.Seed(context.Background(), h))
	assert.Equal(t, time.Second, h.interval)
	assert.Equal(t, t0.Add(-3*time.Second), h.since)

	ticks, ok := f.runner.Timeframe("GoldenCross")
	require.True(t, ok)
	assert.Equal(t, []timeframe.Tick{tick(3, 3), tick(4, 4), tick(5, 5)}, ticks)

	// A seeded full timeframe evaluates on the first live tick.
	require.NoError(t, f.step(t))
	assert.Equal(t, 1, f.entry.evaluations())
}

func TestRestore_PrefersSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 200)
	snap := &recordingPublisher{}
	require.NoError(t, snap.SaveSnapshot(ctx, "GoldenCross", []timeframe.Tick{tick(7, 7), tick(8, 8)}))

	require.NoError(t, f.runner.Restore(ctx, snap))
	require.NoError(t, f.runner.Seed(ctx, &fakeHistory{ticks: []timeframe.Tick{tick(1, 1)}}))

	ticks, _ := f.runner.Timeframe("GoldenCross")
	assert.Equal(t, []timeframe.Tick{tick(7, 7), tick(8, 8)}, ticks)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 1, 100)
	f.entry.period = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runner.Run(ctx) }()

	require.Eventually(t, func() bool { return f.entry.evaluations() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingNotifier holds Send until release is closed.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (n *blockingNotifier) Send(ctx context.Context, _ notification.Alert) error {
	close(n.entered)
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStep_TimeframeReadableDuringSlowNotify(t *testing.T) {
	f := newFixture(t, 1, 100)
	f.entry.signals = []model.Signal{model.SignalBuy}
	slow := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	f.runner.cfg.Notifier = slow

	stepped := make(chan error, 1)
	go func() { stepped <- f.step(t) }()

	select {
	case <-slow.entered:
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}

	read := make(chan []timeframe.Tick, 1)
	go func() {
		ticks, _ := f.runner.Timeframe("GoldenCross")
		read <- ticks
	}()
	select {
	case ticks := <-read:
		assert.Equal(t, []timeframe.Tick{tick(100, 0)}, ticks)
	case <-time.After(time.Second):
		t.Fatal("Timeframe blocked while a notification was in flight")
	}

	close(slow.release)
	require.NoError(t, <-stepped)
}
