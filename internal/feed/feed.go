// Package feed supplies prices to the bot: live quotes for the runner and
// historic series for seeding timeframes and backtests.
package feed

import (
	"context"
	"errors"
	"time"

	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
)

// ErrNoPrice is returned by a PriceSource that has not seen a price yet.
var ErrNoPrice = errors.New("feed: no price available")

// PriceSource returns the latest traded price.
type PriceSource interface {
	LatestPrice(ctx context.Context) (timeframe.Tick, error)
}

// HistorySource returns past prices at roughly interval spacing, oldest
// first, starting at since.
type HistorySource interface {
	History(ctx context.Context, interval time.Duration, since time.Time) ([]timeframe.Tick, error)
}

// StoreHistory serves history from a recorded PriceStore.
type StoreHistory struct {
	Store model.PriceStore
	Asset string
}

func (s StoreHistory) History(ctx context.Context, interval time.Duration, since time.Time) ([]timeframe.Tick, error) {
	ticks, err := s.Store.ReadTicks(ctx, s.Asset, since)
	if err != nil {
		return nil, err
	}
	return Resample(ticks, interval), nil
}

// Resample keeps the last tick of every interval-aligned bucket. Ticks must
// be ordered oldest first. A non-positive interval returns ticks unchanged.
func Resample(ticks []timeframe.Tick, interval time.Duration) []timeframe.Tick {
	if interval <= 0 || len(ticks) == 0 {
		return ticks
	}
	out := make([]timeframe.Tick, 0, len(ticks))
	for i, t := range ticks {
		if i+1 < len(ticks) && ticks[i+1].Time.Truncate(interval).Equal(t.Time.Truncate(interval)) {
			continue
		}
		out = append(out, t)
	}
	return out
}
