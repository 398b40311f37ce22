// Package indicator provides technical indicator calculations over a
// timeframe.Timeframe.
//
// Every indicator is a pure transform: it reads the ticks of one Timeframe
// and returns a new Timeframe of the same length, where output tick i carries
// the timestamp of input tick i. Nothing is carried between calls, so the
// result depends only on the current buffer contents.
package indicator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// Scale is the number of fractional digits indicator values are rounded to
// (half-to-even).
const Scale int32 = 10

// ErrInvalidPeriod is returned when an indicator is applied with period <= 0.
var ErrInvalidPeriod = errors.New("indicator: period must be positive")

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
	unit    = decimal.New(1, -Scale)
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Period returns the configured lookback.
	Period() int

	// Apply computes the indicator series for tf.
	Apply(tf *timeframe.Timeframe) (*timeframe.Timeframe, error)
}

// Config specifies a single indicator to build.
type Config struct {
	Type   string // "SMA", "EMA", "SMMA", "RSI"
	Period int
}

// New builds an indicator from cfg.
func New(cfg Config) (Indicator, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: %s(%d)", ErrInvalidPeriod, cfg.Type, cfg.Period)
	}
	switch strings.ToUpper(cfg.Type) {
	case "SMA":
		return NewSMA(cfg.Period), nil
	case "EMA":
		return NewEMA(cfg.Period), nil
	case "SMMA":
		return NewSMMA(cfg.Period), nil
	case "RSI":
		return NewRSI(cfg.Period), nil
	default:
		return nil, fmt.Errorf("indicator: unknown type %q", cfg.Type)
	}
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%w: %s(%d)", ErrInvalidPeriod, name, period)
	}
	return nil
}

// windowStart returns the first index of the capped window ending at i.
func windowStart(i, period int) int {
	if s := i + 1 - period; s > 0 {
		return s
	}
	return 0
}

// output builds the result Timeframe for src, pairing value i with the
// timestamp of tick i. Order is positional; timestamps are not re-sorted.
func output(src []timeframe.Tick, capacity int, values []decimal.Decimal) (*timeframe.Timeframe, error) {
	out, err := timeframe.New(capacity)
	if err != nil {
		return nil, err
	}
	for i, t := range src {
		out.Add(timeframe.Tick{Time: t.Time, Value: values[i]})
	}
	return out, nil
}

// divide returns num/den rounded half-to-even to Scale fractional digits.
// The quotient is truncated first and the remainder decides the last digit,
// so the rounding is exact.
func divide(num, den decimal.Decimal) decimal.Decimal {
	q, r := num.QuoRem(den, Scale)
	if r.IsZero() {
		return q
	}
	c := r.Abs().Mul(two).Cmp(den.Abs().Mul(unit))
	if c < 0 || (c == 0 && !isOdd(q)) {
		return q
	}
	if num.Sign()*den.Sign() < 0 {
		return q.Sub(unit)
	}
	return q.Add(unit)
}

func isOdd(q decimal.Decimal) bool {
	return !q.Shift(Scale).Mod(two).IsZero()
}
