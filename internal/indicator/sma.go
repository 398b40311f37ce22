package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// SMA calculates Simple Moving Average.
// Position i averages the values in [max(0, i+1-period), i+1): the window
// expands until period ticks are available, then slides.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA_%d", s.period) }
func (s *SMA) Period() int  { return s.period }

// Apply computes the SMA series for tf.
func (s *SMA) Apply(tf *timeframe.Timeframe) (*timeframe.Timeframe, error) {
	if err := checkPeriod("SMA", s.period); err != nil {
		return nil, err
	}
	ticks := tf.Ticks()
	values := make([]decimal.Decimal, len(ticks))

	// Running sum over the window; subtract the value leaving it.
	sum := decimal.Zero
	for i, t := range ticks {
		sum = sum.Add(t.Value)
		start := windowStart(i, s.period)
		if start > 0 {
			sum = sum.Sub(ticks[start-1].Value)
		}
		values[i] = divide(sum, decimal.NewFromInt(int64(i+1-start)))
	}
	return output(ticks, tf.Cap(), values)
}
