package feed

import (
	"context"
	"log"
	"time"

	"moneymaker/internal/timeframe"
)

// maxReplayGap caps the sleep between two replayed ticks.
const maxReplayGap = 5 * time.Second

// Replayer emits recorded ticks at a configurable speed multiplier.
type Replayer struct {
	ticks []timeframe.Tick
}

// NewReplayer creates a Replayer over ticks, which must be ordered oldest
// first.
func NewReplayer(ticks []timeframe.Tick) *Replayer {
	return &Replayer{ticks: ticks}
}

// Run emits every tick into outCh and closes it when done.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, speed float64, outCh chan<- timeframe.Tick) error {
	defer close(outCh)

	if len(r.ticks) == 0 {
		log.Println("[replay] no ticks to replay")
		return nil
	}
	log.Printf("[replay] replaying %d ticks, speed=%.1fx", len(r.ticks), speed)

	var prev time.Time
	emitted := 0
	for _, t := range r.ticks {
		// Simulate time gaps between ticks
		if speed > 0 && !prev.IsZero() {
			if gap := t.Time.Sub(prev); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxReplayGap {
					scaled = maxReplayGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = t.Time

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return ctx.Err()
		case outCh <- t:
			emitted++
		}
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return nil
}
