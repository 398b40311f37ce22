package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymaker/config"
	"moneymaker/internal/feed"
	"moneymaker/internal/notification"
	sqlitestore "moneymaker/internal/store/sqlite"
	"moneymaker/internal/timeframe"
)

func krakenServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"error":[],"result":{"XXBTZGBP":{"c":["25001.3","0.0123"]}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(t *testing.T, krakenURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.MetricsAddr = "127.0.0.1:0"
	cfg.App.SeedHistory = false
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "bot.db")
	cfg.Kraken.BaseURL = krakenURL
	cfg.GoldenCross.PeriodLength = 10 * time.Millisecond
	cfg.GoldenCross.ShortPeriod, cfg.GoldenCross.LongPeriod, cfg.GoldenCross.TimeframeSize = 2, 3, 5
	cfg.ThreeEMA.Enabled = false
	return cfg
}

func TestService_RunRecordsPrices(t *testing.T) {
	srv, calls := krakenServer(t)
	cfg := testConfig(t, srv.URL)

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	svc.source.(*recordingSource).maxAge = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	prices, err := sqlitestore.NewPriceStore(cfg.SQLite.Path)
	require.NoError(t, err)
	defer prices.Close()
	ticks, err := prices.ReadTicks(context.Background(), cfg.Trade.AssetCode, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, ticks)
	assert.True(t, ticks[0].Value.Equal(decimal.RequireFromString("25001.3")))
}

func TestNew_RejectsUnknownExit(t *testing.T) {
	srv, _ := krakenServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.GoldenCross.ExitStrategy = "Nope"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}

func TestNotifiers(t *testing.T) {
	cfg := config.Default()
	multi, ok := notifiers(cfg).(notification.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 1)

	cfg.Webhook.URL = "http://127.0.0.1:1/hook"
	multi = notifiers(cfg).(notification.Multi)
	assert.Len(t, multi, 2)
}

type errSource struct{}

func (errSource) LatestPrice(context.Context) (timeframe.Tick, error) {
	return timeframe.Tick{}, errors.New("down")
}

func TestRecordingSource(t *testing.T) {
	var got []timeframe.Tick
	rec := func(t timeframe.Tick) { got = append(got, t) }

	srv, _ := krakenServer(t)
	cfg := testConfig(t, srv.URL)
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer svc.close()

	src := newRecordingSource(svc.kraken, rec)
	_, err = src.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = newRecordingSource(errSource{}, rec).LatestPrice(context.Background())
	assert.Error(t, err)
	assert.Len(t, got, 1)
}

func TestRecordingSource_SharesQuoteBetweenPollers(t *testing.T) {
	srv, calls := krakenServer(t)
	var got []timeframe.Tick
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	src := newRecordingSource(feed.NewKrakenClient(srv.URL, "XBTGBP", time.Second), func(t timeframe.Tick) { got = append(got, t) })
	src.now = func() time.Time { return now }

	// Two strategies polling in the same instant see one quote and one row.
	a, err := src.LatestPrice(context.Background())
	require.NoError(t, err)
	b, err := src.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), calls.Load())
	assert.Len(t, got, 1)

	now = now.Add(quoteMaxAge)
	_, err = src.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Len(t, got, 2)
}
