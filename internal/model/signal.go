// Package model holds the value types shared between the strategy core and
// the surrounding execution and storage layers, plus the storage ports those
// layers implement.
package model

import "fmt"

// Signal is a trading direction emitted by a strategy.
// The zero value SignalNone means "no signal".
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// Opposite returns the closing direction for a position opened with s.
func (s Signal) Opposite() Signal {
	switch s {
	case SignalBuy:
		return SignalSell
	case SignalSell:
		return SignalBuy
	default:
		return SignalNone
	}
}

// IsNone reports whether s carries no direction.
func (s Signal) IsNone() bool { return s == SignalNone }

func (s Signal) String() string {
	if s == SignalNone {
		return "NONE"
	}
	return string(s)
}

// ParseSignal parses "BUY" or "SELL".
func ParseSignal(v string) (Signal, error) {
	switch Signal(v) {
	case SignalBuy, SignalSell:
		return Signal(v), nil
	default:
		return SignalNone, fmt.Errorf("model: unknown signal %q", v)
	}
}
