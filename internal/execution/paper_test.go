package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
	"moneymaker/internal/trade"
)

var at = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

func paper(bps int64) (*PaperExecutor, *trade.MemoryStore) {
	store := trade.NewMemoryStore()
	return NewPaperExecutor(PaperConfig{AssetCode: "XBTGBP", Volume: decimal.RequireFromString("0.01"), SlippageBps: bps}, store), store
}

func price(v int64, offset time.Duration) timeframe.Tick {
	return timeframe.NewTick(at.Add(offset), decimal.NewFromInt(v))
}

func TestPaperExecutor_OpenClose(t *testing.T) {
	ctx := context.Background()
	p, store := paper(0)

	tr, err := p.Open(ctx, OpenRequest{
		Strategy: "GoldenCross", ExitStrategy: "TrailingStop", PeriodLength: time.Second,
		Signal: model.SignalBuy, Tick: price(100, 0),
	})
	require.NoError(t, err)
	require.NotZero(t, tr.ID)

	open, err := store.OpenTrades(ctx, "GoldenCross")
	require.NoError(t, err)
	require.Len(t, open, 1)
	entry, _ := open[0].Entry()
	assert.True(t, entry.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "XBTGBP", entry.AssetCode)
	assert.Equal(t, model.StatusFilled, entry.Status)
	assert.True(t, entry.Time.Equal(at))

	closed, err := p.Close(ctx, open[0], model.SignalSell, price(110, time.Minute))
	require.NoError(t, err)
	require.NotNil(t, closed.Profit)
	assert.True(t, closed.Profit.Equal(decimal.RequireFromString("9.52380952")), "profit %s", closed.Profit)

	// The caller's trade is left untouched.
	assert.True(t, open[0].IsOpen())

	stored, err := store.Trade(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOpen())

	fills := p.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "PAPER-1", fills[0].OrderID)
	assert.Equal(t, model.OrderExit, fills[1].Type)
}

func TestPaperExecutor_Slippage(t *testing.T) {
	ctx := context.Background()
	p, _ := paper(50) // 0.5%

	buy, err := p.Open(ctx, OpenRequest{Strategy: "GoldenCross", Signal: model.SignalBuy, Tick: price(1000, 0)})
	require.NoError(t, err)
	entry, _ := buy.Entry()
	assert.True(t, entry.Price.Equal(decimal.NewFromInt(1005)), "buy fill %s", entry.Price)

	sell, err := p.Open(ctx, OpenRequest{Strategy: "GoldenCross", Signal: model.SignalSell, Tick: price(1000, 0)})
	require.NoError(t, err)
	entry, _ = sell.Entry()
	assert.True(t, entry.Price.Equal(decimal.NewFromInt(995)), "sell fill %s", entry.Price)
	assert.True(t, p.Fills()[1].Slippage.Equal(decimal.NewFromInt(5)))
}

func TestPaperExecutor_Errors(t *testing.T) {
	ctx := context.Background()
	p, _ := paper(0)

	_, err := p.Open(ctx, OpenRequest{Strategy: "GoldenCross", Tick: price(1, 0)})
	assert.Error(t, err)

	tr, err := p.Open(ctx, OpenRequest{Strategy: "GoldenCross", Signal: model.SignalSell, Tick: price(100, 0)})
	require.NoError(t, err)
	closed, err := p.Close(ctx, tr, model.SignalBuy, price(90, time.Hour))
	require.NoError(t, err)

	_, err = p.Close(ctx, closed, model.SignalBuy, price(80, 2*time.Hour))
	assert.True(t, errors.Is(err, ErrAlreadyClosed))
}
