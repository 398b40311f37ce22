// Package strategy provides the entry and exit strategies that turn a price
// Timeframe into trading signals.
//
// Entry strategies decide when to open a position from the price series
// alone. Exit strategies decide when to close an existing trade and need
// the trade's entry context, which they read through a TradeLookup.
// Strategies hold no state between evaluations.
package strategy

import (
	"context"
	"fmt"
	"time"

	"moneymaker/config"
	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

// Entry is the interface that all entry strategies must implement.
type Entry interface {
	// Name returns the unique name of the strategy.
	Name() string

	// PeriodLength is the interval between evaluations.
	PeriodLength() time.Duration

	// TimeframeSize is the capacity of the price Timeframe the strategy
	// expects to evaluate.
	TimeframeSize() int

	// ExitStrategy names the exit strategy that closes trades opened here.
	ExitStrategy() string

	// Evaluate returns BUY, SELL or SignalNone for the current series.
	Evaluate(tf *timeframe.Timeframe) (model.Signal, error)
}

// Exit is the interface that all exit strategies must implement.
type Exit interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Evaluate returns the closing signal for tradeID, or SignalNone to hold.
	Evaluate(ctx context.Context, tradeID int64, tf *timeframe.Timeframe) (model.Signal, error)
}

// TradeLookup provides the entry context of a trade.
// Implementations return an error wrapping model.ErrTradeNotFound for an
// unknown id.
type TradeLookup interface {
	Trade(ctx context.Context, id int64) (*model.Trade, error)
}

// Set is the resolved collection of strategies for one process.
type Set struct {
	Entries []Entry
	Exits   map[string]Exit
}

// ExitFor returns the exit strategy configured for e.
func (s *Set) ExitFor(e Entry) (Exit, bool) {
	x, ok := s.Exits[e.ExitStrategy()]
	return x, ok
}

// Build resolves the enabled strategies in cfg. Strategies are enumerated
// explicitly here; there is no runtime discovery.
func Build(cfg *config.Config, trades TradeLookup) (*Set, error) {
	set := &Set{Exits: map[string]Exit{
		config.TrailingStopName: NewTrailingStop(cfg.TrailingStop, trades),
	}}

	if cfg.GoldenCross.Enabled {
		s, err := NewMACrossover(cfg.GoldenCross)
		if err != nil {
			return nil, err
		}
		set.Entries = append(set.Entries, s)
	}
	if cfg.ThreeEMA.Enabled {
		s, err := NewThreeEMACrossover(cfg.ThreeEMA)
		if err != nil {
			return nil, err
		}
		set.Entries = append(set.Entries, s)
	}

	for _, e := range set.Entries {
		if _, ok := set.ExitFor(e); !ok {
			return nil, fmt.Errorf("strategy: %s references unknown exit strategy %q", e.Name(), e.ExitStrategy())
		}
	}
	return set, nil
}

// fromCrossover maps a crossover result to a signal.
func fromCrossover(cross int) model.Signal {
	switch {
	case cross > 0:
		return model.SignalBuy
	case cross < 0:
		return model.SignalSell
	default:
		return model.SignalNone
	}
}
