package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/config"
	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

// ErrNoEntryOrder is returned when a trade exists but has no ENTRY order to
// trail from.
var ErrNoEntryOrder = errors.New("trade has no entry order")

// TrailingStop closes a trade when price crosses a stop that trails it by a
// fixed fraction. The stop only ever moves in the trade's favour: up for a
// BUY, down for a SELL.
type TrailingStop struct {
	distance decimal.Decimal
	trades   TradeLookup
}

// NewTrailingStop creates the exit from cfg, reading trades through trades.
func NewTrailingStop(cfg config.TrailingStopConfig, trades TradeLookup) *TrailingStop {
	return &TrailingStop{distance: cfg.Distance, trades: trades}
}

func (t *TrailingStop) Name() string { return config.TrailingStopName }

// Evaluate rebuilds the stop series for tradeID over tf and returns the
// opposite of the entry signal when price crosses it.
func (t *TrailingStop) Evaluate(ctx context.Context, tradeID int64, tf *timeframe.Timeframe) (model.Signal, error) {
	tr, err := t.trades.Trade(ctx, tradeID)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s trade %d: %w", t.Name(), tradeID, err)
	}
	entry, ok := tr.Entry()
	if !ok {
		return model.SignalNone, fmt.Errorf("%s trade %d: %w", t.Name(), tradeID, ErrNoEntryOrder)
	}

	stops, err := t.StopLevels(entry, tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s trade %d: %w", t.Name(), tradeID, err)
	}
	cross, err := tf.Crossover(stops)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s trade %d crossover: %w", t.Name(), tradeID, err)
	}
	if cross == 0 {
		return model.SignalNone, nil
	}
	return entry.Signal.Opposite(), nil
}

// StopLevels returns the stop series aligned with tf: one seed tick at the
// entry time, then one ratcheted level per price tick after the first.
func (t *TrailingStop) StopLevels(entry model.Order, tf *timeframe.Timeframe) (*timeframe.Timeframe, error) {
	if entry.Signal.IsNone() {
		return nil, fmt.Errorf("entry order has no direction")
	}
	stops, err := timeframe.New(tf.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: empty price series", timeframe.ErrInsufficientTicks)
	}

	stop := t.level(entry.Price, entry.Signal)
	stops.Add(timeframe.NewTick(entry.Time, stop))

	for i, tick := range tf.Ticks() {
		if i == 0 {
			continue
		}
		candidate := t.level(tick.Value, entry.Signal)
		if ratchets(entry.Signal, candidate, stop) {
			stop = candidate
		}
		stops.Add(timeframe.NewTick(tick.Time, stop))
	}
	return stops, nil
}

// level places the stop distance·price below price for a BUY and above it
// for a SELL.
func (t *TrailingStop) level(price decimal.Decimal, dir model.Signal) decimal.Decimal {
	offset := price.Mul(t.distance)
	if dir == model.SignalBuy {
		return price.Sub(offset)
	}
	return price.Add(offset)
}

func ratchets(dir model.Signal, candidate, current decimal.Decimal) bool {
	if dir == model.SignalBuy {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}
