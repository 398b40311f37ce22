// Package trade holds trade accounting: per-trade profit, compounded
// balances across closed trades and an in-memory TradeStore.
package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/internal/model"
)

// Scale is the number of fractional digits profit figures are rounded to.
const Scale int32 = 10

var (
	// DefaultBalance is the starting balance Compound is usually given.
	DefaultBalance = decimal.NewFromInt(1000)
	// DefaultFee is the fraction of the balance charged per closed trade.
	DefaultFee = decimal.RequireFromString("0.005")

	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
	unit    = decimal.New(1, -Scale)
)

// ErrOpenTrade is returned when profit is requested for a trade without an
// EXIT order.
var ErrOpenTrade = errors.New("trade is still open")

// ProfitPercent returns the profit of a round trip as a percentage of the
// mid price: margin / ((entry+exit)/2) * 100. The margin is exit-entry for a
// BUY entry and entry-exit for a SELL entry.
func ProfitPercent(entry, exit model.Order) decimal.Decimal {
	margin := exit.Price.Sub(entry.Price)
	if entry.Signal == model.SignalSell {
		margin = margin.Neg()
	}
	mid := quo(exit.Price.Add(entry.Price), two)
	if mid.IsZero() {
		return decimal.Zero
	}
	return quo(margin, mid).Mul(hundred)
}

// Profit computes ProfitPercent for a closed trade.
func Profit(t *model.Trade) (decimal.Decimal, error) {
	entry, ok := t.Entry()
	if !ok {
		return decimal.Zero, fmt.Errorf("trade %d: no entry order", t.ID)
	}
	exit, ok := t.Exit()
	if !ok {
		return decimal.Zero, fmt.Errorf("trade %d: %w", t.ID, ErrOpenTrade)
	}
	return ProfitPercent(entry, exit), nil
}

// Compound grows start by each trade's profit percentage in order and
// charges fee (a fraction of the balance) after every trade. Trades without
// a profit are skipped.
func Compound(start, fee decimal.Decimal, trades []*model.Trade) decimal.Decimal {
	balance := start
	for _, t := range trades {
		if t.Profit == nil {
			continue
		}
		balance = balance.Add(balance.Mul(quo(*t.Profit, hundred)))
		balance = balance.Sub(balance.Mul(fee))
	}
	return balance
}

// quo returns num/den rounded half-to-even to Scale digits.
func quo(num, den decimal.Decimal) decimal.Decimal {
	q, r := num.QuoRem(den, Scale)
	if r.IsZero() {
		return q
	}
	c := r.Abs().Mul(two).Cmp(den.Abs().Mul(unit))
	if c < 0 || (c == 0 && q.Shift(Scale).Mod(two).IsZero()) {
		return q
	}
	if num.Sign()*den.Sign() < 0 {
		return q.Sub(unit)
	}
	return q.Add(unit)
}
