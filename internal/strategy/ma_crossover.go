package strategy

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/config"
	"moneymaker/internal/indicator"
	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

var (
	overbought = decimal.NewFromInt(70)
	oversold   = decimal.NewFromInt(30)
)

// MACrossover implements the two-line moving average crossover.
//
// Buy signal: short average crosses above long average (golden cross)
// Sell signal: short average crosses below long average (death cross)
//
// Optional RSI filter suppresses buys when overbought (>70)
// and sells when oversold (<30).
type MACrossover struct {
	cfg   config.GoldenCrossConfig
	short indicator.Indicator
	long  indicator.Indicator
	rsi   indicator.Indicator
}

// NewMACrossover creates the crossover from cfg.
func NewMACrossover(cfg config.GoldenCrossConfig) (*MACrossover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind := strings.ToUpper(cfg.Average)
	short, err := indicator.New(indicator.Config{Type: kind, Period: cfg.ShortPeriod})
	if err != nil {
		return nil, err
	}
	long, err := indicator.New(indicator.Config{Type: kind, Period: cfg.LongPeriod})
	if err != nil {
		return nil, err
	}
	s := &MACrossover{cfg: cfg, short: short, long: long}
	if cfg.RSIPeriod > 0 {
		s.rsi = indicator.NewRSI(cfg.RSIPeriod)
	}
	return s, nil
}

func (s *MACrossover) Name() string                { return config.GoldenCrossName }
func (s *MACrossover) PeriodLength() time.Duration { return s.cfg.PeriodLength }
func (s *MACrossover) TimeframeSize() int          { return s.cfg.TimeframeSize }
func (s *MACrossover) ExitStrategy() string        { return s.cfg.ExitStrategy }

// Evaluate crosses the short average over the long one.
func (s *MACrossover) Evaluate(tf *timeframe.Timeframe) (model.Signal, error) {
	short, err := s.short.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s short %s: %w", s.Name(), s.short.Name(), err)
	}
	long, err := s.long.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s long %s: %w", s.Name(), s.long.Name(), err)
	}
	cross, err := short.Crossover(long)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s crossover: %w", s.Name(), err)
	}

	sig := fromCrossover(cross)
	if sig.IsNone() || s.rsi == nil {
		return sig, nil
	}
	return s.filter(sig, tf)
}

func (s *MACrossover) filter(sig model.Signal, tf *timeframe.Timeframe) (model.Signal, error) {
	rsi, err := s.rsi.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s %s: %w", s.Name(), s.rsi.Name(), err)
	}
	last, ok := rsi.Last()
	if !ok {
		return sig, nil
	}
	if sig == model.SignalBuy && last.Value.GreaterThan(overbought) {
		log.Printf("[strategy] %s: golden cross filtered by RSI %s > 70", s.Name(), last.Value.StringFixed(1))
		return model.SignalNone, nil
	}
	if sig == model.SignalSell && last.Value.LessThan(oversold) {
		log.Printf("[strategy] %s: death cross filtered by RSI %s < 30", s.Name(), last.Value.StringFixed(1))
		return model.SignalNone, nil
	}
	return sig, nil
}
