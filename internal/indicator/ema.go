package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// foldScale is the working precision of the smoothing fold. Results are
// rounded to Scale at the end of each window.
const foldScale int32 = 2 * Scale

// EMA calculates Exponential Moving Average with α = 2/(period+1).
//
// Each output position re-derives its own smoothing chain over the capped
// window [max(0, i+1-period), i+1): the first value of the window is its own
// EMA, then ema = v·α + ema·(1-α) for each following value.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA_%d", e.period) }
func (e *EMA) Period() int  { return e.period }

// Alpha returns the smoothing factor rounded to Scale digits.
func (e *EMA) Alpha() decimal.Decimal {
	return divide(two, decimal.NewFromInt(int64(e.period+1)))
}

// Apply computes the EMA series for tf.
func (e *EMA) Apply(tf *timeframe.Timeframe) (*timeframe.Timeframe, error) {
	if err := checkPeriod("EMA", e.period); err != nil {
		return nil, err
	}
	ticks := tf.Ticks()
	arena := tf.Values()
	alpha := e.Alpha()
	keep := one.Sub(alpha)

	values := make([]decimal.Decimal, len(arena))
	for i := range arena {
		values[i] = fold(arena, windowStart(i, e.period), i, alpha, keep)
	}
	return output(ticks, tf.Cap(), values)
}

// fold smooths arena[from..to] inclusive.
func fold(arena []decimal.Decimal, from, to int, alpha, keep decimal.Decimal) decimal.Decimal {
	ema := arena[from]
	for j := from + 1; j <= to; j++ {
		ema = arena[j].Mul(alpha).Add(ema.Mul(keep)).RoundBank(foldScale)
	}
	return ema.RoundBank(Scale)
}
