package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// neutral is the RSI reported when there has been no movement at all.
var neutral = decimal.NewFromInt(50)

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
//
// Average gain and loss are plain means over the deltas seen so far until
// period deltas exist, then Wilder-smoothed:
// avg = (prevAvg*(period-1) + current) / period.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI_%d", r.period) }
func (r *RSI) Period() int  { return r.period }

// Apply computes the RSI series for tf. The first tick has no delta and
// reports 50.
func (r *RSI) Apply(tf *timeframe.Timeframe) (*timeframe.Timeframe, error) {
	if err := checkPeriod("RSI", r.period); err != nil {
		return nil, err
	}
	ticks := tf.Ticks()
	values := make([]decimal.Decimal, len(ticks))
	p := decimal.NewFromInt(int64(r.period))
	prevWeight := decimal.NewFromInt(int64(r.period - 1))

	var sumGain, sumLoss, avgGain, avgLoss decimal.Decimal
	for i := range ticks {
		if i == 0 {
			values[i] = neutral
			continue
		}
		delta := ticks[i].Value.Sub(ticks[i-1].Value)
		gain, loss := decimal.Zero, decimal.Zero
		if delta.IsPositive() {
			gain = delta
		} else {
			loss = delta.Neg()
		}

		if i <= r.period {
			// Accumulation phase
			sumGain = sumGain.Add(gain)
			sumLoss = sumLoss.Add(loss)
			n := decimal.NewFromInt(int64(i))
			avgGain = divide(sumGain, n)
			avgLoss = divide(sumLoss, n)
		} else {
			avgGain = divide(avgGain.Mul(prevWeight).Add(gain), p)
			avgLoss = divide(avgLoss.Mul(prevWeight).Add(loss), p)
		}
		values[i] = strength(avgGain, avgLoss)
	}
	return output(ticks, tf.Cap(), values)
}

func strength(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		return neutral
	case avgLoss.IsZero():
		return hundred
	}
	// RSI = 100 - 100/(1+RS) = 100*gain / (gain+loss)
	return divide(hundred.Mul(avgGain), avgGain.Add(avgLoss))
}
