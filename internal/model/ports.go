package model

import (
	"context"
	"time"

	"moneymaker/internal/timeframe"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the runner, executor and backtester from concrete
// storage implementations (SQLite, Postgres, in-memory).

// TradeStore persists trades and their orders.
type TradeStore interface {
	// Save inserts t when t.ID is zero (assigning the new ID) and otherwise
	// replaces the stored trade and its orders.
	Save(ctx context.Context, t *Trade) error

	// Trade loads one trade. Returns an error wrapping ErrTradeNotFound when
	// the id is unknown.
	Trade(ctx context.Context, id int64) (*Trade, error)

	// OpenTrades returns trades of the given entry strategy that have no
	// EXIT order, oldest first.
	OpenTrades(ctx context.Context, strategy string) ([]*Trade, error)

	// ClosedTrades returns all trades with an EXIT order, oldest first.
	ClosedTrades(ctx context.Context) ([]*Trade, error)

	// Close releases underlying resources.
	Close() error
}

// PriceStore records observed prices so a Timeframe can be seeded from
// history and backtests can replay them.
type PriceStore interface {
	// WriteTicks appends price observations for asset.
	WriteTicks(ctx context.Context, asset string, ticks []timeframe.Tick) error

	// ReadTicks returns observations for asset at or after since, oldest first.
	ReadTicks(ctx context.Context, asset string, since time.Time) ([]timeframe.Tick, error)

	// Close releases underlying resources.
	Close() error
}
