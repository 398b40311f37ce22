package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// Until period values are available the output is the expanding mean; from
// there on SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period int
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return fmt.Sprintf("SMMA_%d", s.period) }
func (s *SMMA) Period() int  { return s.period }

// Apply computes the SMMA series for tf.
func (s *SMMA) Apply(tf *timeframe.Timeframe) (*timeframe.Timeframe, error) {
	if err := checkPeriod("SMMA", s.period); err != nil {
		return nil, err
	}
	ticks := tf.Ticks()
	values := make([]decimal.Decimal, len(ticks))
	p := decimal.NewFromInt(int64(s.period))
	prevWeight := decimal.NewFromInt(int64(s.period - 1))

	sum := decimal.Zero
	for i, t := range ticks {
		if i < s.period {
			sum = sum.Add(t.Value)
			values[i] = divide(sum, decimal.NewFromInt(int64(i+1)))
			continue
		}
		values[i] = divide(values[i-1].Mul(prevWeight).Add(t.Value), p)
	}
	return output(ticks, tf.Cap(), values)
}
