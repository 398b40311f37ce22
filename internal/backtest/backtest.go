// Package backtest runs strategies over recorded prices.
//
// Historic streams a price series through one entry strategy and its exit
// strategy exactly as the live runner would, trading on paper. Windowed
// evaluates the entry strategy over every growing prefix of a fixed series
// to show where it would have fired.
package backtest

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"moneymaker/internal/execution"
	"moneymaker/internal/model"
	"moneymaker/internal/strategy"
	"moneymaker/internal/timeframe"
	"moneymaker/internal/trade"
)

// DefaultWindowStart is the first prefix length Windowed evaluates.
const DefaultWindowStart = 55

// Report summarises a historic run.
type Report struct {
	Strategy    string
	Ticks       int
	Evaluations int
	Signals     int
	Trades      int
	Open        int
	Wins        int
	Losses      int
	Balance     decimal.Decimal
}

// Historic replays ticks through an entry strategy and its exit.
type Historic struct {
	entry    strategy.Entry
	exit     strategy.Exit
	trades   model.TradeStore
	executor execution.Executor

	Balance decimal.Decimal
	Fee     decimal.Decimal

	tf     *timeframe.Timeframe
	report Report
}

// NewHistoric creates a backtest. The exit strategy must read trades from
// the same store the executor writes to.
func NewHistoric(entry strategy.Entry, exit strategy.Exit, trades model.TradeStore, executor execution.Executor) (*Historic, error) {
	tf, err := timeframe.New(entry.TimeframeSize())
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", entry.Name(), err)
	}
	return &Historic{
		entry:    entry,
		exit:     exit,
		trades:   trades,
		executor: executor,
		Balance:  trade.DefaultBalance,
		Fee:      trade.DefaultFee,
		tf:       tf,
		report:   Report{Strategy: entry.Name()},
	}, nil
}

// Run processes every tick in order and returns the report.
func (h *Historic) Run(ctx context.Context, ticks []timeframe.Tick) (*Report, error) {
	for _, t := range ticks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.Process(ctx, t); err != nil {
			return nil, err
		}
	}
	return h.Report(ctx)
}

// RunStream processes ticks from tickCh until it is closed or ctx is done.
func (h *Historic) RunStream(ctx context.Context, tickCh <-chan timeframe.Tick) (*Report, error) {
	for {
		select {
		case <-ctx.Done():
			return h.Report(ctx)
		case t, ok := <-tickCh:
			if !ok {
				return h.Report(ctx)
			}
			if err := h.Process(ctx, t); err != nil {
				return nil, err
			}
		}
	}
}

// Process appends one tick and, once the timeframe is full, evaluates the
// exit for every open trade and then the entry strategy.
func (h *Historic) Process(ctx context.Context, tick timeframe.Tick) error {
	h.tf.Add(tick)
	h.report.Ticks++
	if !h.tf.IsFull() {
		return nil
	}
	h.report.Evaluations++

	open, err := h.trades.OpenTrades(ctx, h.entry.Name())
	if err != nil {
		return err
	}
	for _, t := range open {
		sig, err := h.exit.Evaluate(ctx, t.ID, h.tf)
		if err != nil {
			return err
		}
		if sig.IsNone() {
			continue
		}
		h.report.Signals++
		if _, err := h.executor.Close(ctx, t, sig, tick); err != nil {
			return err
		}
	}

	sig, err := h.entry.Evaluate(h.tf)
	if err != nil {
		return err
	}
	if sig.IsNone() {
		return nil
	}
	h.report.Signals++
	_, err = h.executor.Open(ctx, execution.OpenRequest{
		Strategy:     h.entry.Name(),
		ExitStrategy: h.exit.Name(),
		PeriodLength: h.entry.PeriodLength(),
		Signal:       sig,
		Tick:         tick,
	})
	return err
}

// Report tallies the trades made so far and compounds the closed ones.
func (h *Historic) Report(ctx context.Context) (*Report, error) {
	closed, err := h.trades.ClosedTrades(ctx)
	if err != nil {
		return nil, err
	}
	open, err := h.trades.OpenTrades(ctx, h.entry.Name())
	if err != nil {
		return nil, err
	}

	r := h.report
	r.Open = len(open)
	var mine []*model.Trade
	for _, t := range closed {
		if t.EntryStrategy != h.entry.Name() {
			continue
		}
		mine = append(mine, t)
		switch {
		case t.Profit == nil:
		case t.Profit.IsPositive():
			r.Wins++
		case t.Profit.IsNegative():
			r.Losses++
		}
	}
	r.Trades = len(mine) + r.Open
	r.Balance = trade.Compound(h.Balance, h.Fee, mine)
	return &r, nil
}

// WindowSignal is a signal found at one prefix of the series.
type WindowSignal struct {
	Index  int // prefix length
	Tick   timeframe.Tick
	Signal model.Signal
}

// Windowed evaluates an entry strategy over growing prefixes of a series.
type Windowed struct {
	Entry strategy.Entry
}

// Run evaluates tf.Subframe(i) for i = start..tf.Size() and returns every
// non-empty signal. A start below 2 uses DefaultWindowStart.
func (w Windowed) Run(tf *timeframe.Timeframe, start int) ([]WindowSignal, error) {
	if start < 2 {
		start = DefaultWindowStart
	}
	var out []WindowSignal
	for i := start; i <= tf.Size(); i++ {
		sub, err := tf.Subframe(i)
		if err != nil {
			return nil, err
		}
		sig, err := w.Entry.Evaluate(sub)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if sig.IsNone() {
			continue
		}
		last, _ := sub.Last()
		out = append(out, WindowSignal{Index: i, Tick: last, Signal: sig})
	}
	if len(out) == 0 {
		log.Printf("[backtest] %s: no signals over %d windows", w.Entry.Name(), max(0, tf.Size()-start+1))
	}
	return out, nil
}
