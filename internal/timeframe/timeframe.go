// Package timeframe provides the bounded, time-ordered price buffer that every
// indicator and strategy reads from.
//
// A Timeframe is a fixed-capacity circular buffer of Ticks. Appending to a full
// Timeframe evicts the oldest tick. Designed for single-goroutine usage: the
// evaluation loop that owns a Timeframe is its only writer, and any other
// reader must work from the copy returned by Ticks().
package timeframe

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCapacity is returned when a Timeframe is created with capacity < 1.
	ErrInvalidCapacity = errors.New("timeframe: capacity must be at least 1")

	// ErrInsufficientTicks is returned by Crossover when either series holds
	// fewer than two ticks.
	ErrInsufficientTicks = errors.New("timeframe: crossover needs at least 2 ticks per series")

	// ErrOutOfRange is returned by Subframe for bounds that do not describe a
	// non-empty slice of the current ticks.
	ErrOutOfRange = errors.New("timeframe: subframe range out of bounds")
)

// Tick is one timestamped price observation.
type Tick struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// NewTick builds a Tick from a time and a decimal value.
func NewTick(ts time.Time, v decimal.Decimal) Tick {
	return Tick{Time: ts, Value: v}
}

// Timeframe is a fixed-capacity ring of Ticks, oldest first.
type Timeframe struct {
	buf   []Tick
	head  int // index of the oldest tick
	count int
	now   func() time.Time
}

// New creates an empty Timeframe holding at most capacity ticks.
func New(capacity int) (*Timeframe, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Timeframe{
		buf: make([]Tick, capacity),
		now: time.Now,
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity int) *Timeframe {
	tf, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return tf
}

// NewWithTicks creates a Timeframe seeded with ticks. The seed is sorted by
// time (stable for equal timestamps) before insertion, so when the seed is
// larger than capacity only the most recent ticks survive.
func NewWithTicks(capacity int, ticks []Tick) (*Timeframe, error) {
	tf, err := New(capacity)
	if err != nil {
		return nil, err
	}
	sorted := make([]Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	for _, t := range sorted {
		tf.push(t)
	}
	return tf, nil
}

// WithClock replaces the clock used by AddValue. Returns the receiver.
func (tf *Timeframe) WithClock(now func() time.Time) *Timeframe {
	tf.now = now
	return tf
}

// AddValue stamps v with the current time, appends it and returns the
// resulting ordered ticks.
func (tf *Timeframe) AddValue(v decimal.Decimal) []Tick {
	return tf.Add(Tick{Time: tf.now(), Value: v})
}

// Add appends t, evicting the oldest tick when full, and returns the
// resulting ordered ticks.
func (tf *Timeframe) Add(t Tick) []Tick {
	tf.push(t)
	return tf.Ticks()
}

func (tf *Timeframe) push(t Tick) {
	capacity := len(tf.buf)
	if tf.count < capacity {
		tf.buf[(tf.head+tf.count)%capacity] = t
		tf.count++
		return
	}
	// Full: overwrite the oldest and advance head.
	tf.buf[tf.head] = t
	tf.head = (tf.head + 1) % capacity
}

// at returns the i-th tick, oldest first. i must be in [0, count).
func (tf *Timeframe) at(i int) Tick {
	return tf.buf[(tf.head+i)%len(tf.buf)]
}

// Ticks returns a copy of the ticks, oldest first.
func (tf *Timeframe) Ticks() []Tick {
	out := make([]Tick, tf.count)
	for i := 0; i < tf.count; i++ {
		out[i] = tf.at(i)
	}
	return out
}

// Values returns a copy of the tick values, oldest first.
func (tf *Timeframe) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, tf.count)
	for i := 0; i < tf.count; i++ {
		out[i] = tf.at(i).Value
	}
	return out
}

// Last returns the newest tick. ok is false when the Timeframe is empty.
func (tf *Timeframe) Last() (Tick, bool) {
	if tf.count == 0 {
		return Tick{}, false
	}
	return tf.at(tf.count - 1), true
}

// Size returns the number of ticks held.
func (tf *Timeframe) Size() int { return tf.count }

// Cap returns the configured capacity.
func (tf *Timeframe) Cap() int { return len(tf.buf) }

// IsFull reports whether Size() == Cap().
func (tf *Timeframe) IsFull() bool { return tf.count == len(tf.buf) }

// Subframe returns a new Timeframe holding ticks [0, to).
func (tf *Timeframe) Subframe(to int) (*Timeframe, error) {
	return tf.SubframeRange(0, to)
}

// SubframeRange returns a new Timeframe holding ticks [from, to), with
// capacity equal to to-from.
func (tf *Timeframe) SubframeRange(from, to int) (*Timeframe, error) {
	if from < 0 || to > tf.count || from >= to {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, from, to, tf.count)
	}
	sub, err := New(to - from)
	if err != nil {
		return nil, err
	}
	sub.now = tf.now
	for i := from; i < to; i++ {
		sub.push(tf.at(i))
	}
	return sub, nil
}

// Crossover compares the last two ticks of tf against the last two ticks of
// other. It returns +1 when tf moved from at-or-below other to strictly
// above, -1 when it moved from at-or-above to strictly below, and 0 when the
// sign of the difference did not change.
func (tf *Timeframe) Crossover(other *Timeframe) (int, error) {
	if tf.count < 2 || other.count < 2 {
		return 0, fmt.Errorf("%w: have %d and %d", ErrInsufficientTicks, tf.count, other.count)
	}
	current := tf.at(tf.count - 1).Value.Sub(other.at(other.count - 1).Value).Sign()
	previous := tf.at(tf.count - 2).Value.Sub(other.at(other.count - 2).Value).Sign()
	if current == previous {
		return 0, nil
	}
	return current, nil
}
