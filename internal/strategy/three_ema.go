package strategy

import (
	"fmt"
	"time"

	"moneymaker/config"
	"moneymaker/internal/indicator"
	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

// ThreeEMACrossover watches short, medium and long EMAs.
//
// A crossover of short/long or medium/long (and short/medium when enabled)
// arms the check; the signal follows only when the three lines are strictly
// ordered at the latest point: short > medium > long is BUY, the reverse is
// SELL. A crossover into a tangled or flat ordering is ignored.
type ThreeEMACrossover struct {
	cfg                 config.ThreeEMAConfig
	short, medium, long *indicator.EMA
}

// NewThreeEMACrossover creates the strategy from cfg.
func NewThreeEMACrossover(cfg config.ThreeEMAConfig) (*ThreeEMACrossover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ThreeEMACrossover{
		cfg:    cfg,
		short:  indicator.NewEMA(cfg.ShortPeriod),
		medium: indicator.NewEMA(cfg.MediumPeriod),
		long:   indicator.NewEMA(cfg.LongPeriod),
	}, nil
}

func (s *ThreeEMACrossover) Name() string                { return config.ThreeEMAName }
func (s *ThreeEMACrossover) PeriodLength() time.Duration { return s.cfg.PeriodLength }
func (s *ThreeEMACrossover) TimeframeSize() int          { return s.cfg.TimeframeSize }
func (s *ThreeEMACrossover) ExitStrategy() string        { return s.cfg.ExitStrategy }

// Evaluate computes the three EMA series and decides on them.
func (s *ThreeEMACrossover) Evaluate(tf *timeframe.Timeframe) (model.Signal, error) {
	short, err := s.short.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s short: %w", s.Name(), err)
	}
	medium, err := s.medium.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s medium: %w", s.Name(), err)
	}
	long, err := s.long.Apply(tf)
	if err != nil {
		return model.SignalNone, fmt.Errorf("%s long: %w", s.Name(), err)
	}
	return s.decide(short, medium, long)
}

func (s *ThreeEMACrossover) decide(short, medium, long *timeframe.Timeframe) (model.Signal, error) {
	pairs := [][2]*timeframe.Timeframe{{short, long}, {medium, long}}
	if s.cfg.TriggerShortMedium {
		pairs = append(pairs, [2]*timeframe.Timeframe{short, medium})
	}

	triggered := false
	for _, p := range pairs {
		cross, err := p[0].Crossover(p[1])
		if err != nil {
			return model.SignalNone, fmt.Errorf("%s crossover: %w", s.Name(), err)
		}
		if cross != 0 {
			triggered = true
		}
	}
	if !triggered {
		return model.SignalNone, nil
	}

	// Crossover checked both series hold at least two ticks.
	ls, _ := short.Last()
	lm, _ := medium.Last()
	ll, _ := long.Last()
	sm := ls.Value.Sub(lm.Value).Sign()
	ml := lm.Value.Sub(ll.Value).Sign()
	if sm == 0 || sm != ml {
		return model.SignalNone, nil
	}
	return fromCrossover(sm), nil
}
