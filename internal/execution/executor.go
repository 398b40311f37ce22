// Package execution turns strategy signals into trades.
//
// Only paper execution exists: orders fill immediately at the observed price
// (plus simulated slippage) and the trade is persisted through a
// model.TradeStore. Real broker order lifecycles are out of scope.
package execution

import (
	"context"
	"time"

	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

// OpenRequest describes an entry signal to act on.
type OpenRequest struct {
	Strategy     string
	ExitStrategy string
	PeriodLength time.Duration
	Signal       model.Signal
	Tick         timeframe.Tick
}

// Executor opens and closes trades.
type Executor interface {
	// Open creates and saves a trade with one ENTRY order.
	Open(ctx context.Context, req OpenRequest) (*model.Trade, error)

	// Close appends an EXIT order to t, sets its profit and saves it.
	Close(ctx context.Context, t *model.Trade, sig model.Signal, tick timeframe.Tick) (*model.Trade, error)
}
