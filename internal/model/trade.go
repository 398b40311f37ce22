package model

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrTradeNotFound is returned by trade stores when a trade id is unknown.
var ErrTradeNotFound = errors.New("trade not found")

// Trade groups the orders opened by one entry signal and closed by one exit
// signal. Profit is set once the exit order exists.
type Trade struct {
	ID            int64            `json:"id"`
	EntryStrategy string           `json:"entry_strategy"`
	ExitStrategy  string           `json:"exit_strategy"`
	PeriodLength  time.Duration    `json:"period_length"`
	Orders        []Order          `json:"orders"`
	Profit        *decimal.Decimal `json:"profit,omitempty"`
}

// Entry returns the ENTRY order. ok is false for a trade without one.
func (t *Trade) Entry() (Order, bool) {
	return t.order(OrderEntry)
}

// Exit returns the EXIT order. ok is false while the trade is open.
func (t *Trade) Exit() (Order, bool) {
	return t.order(OrderExit)
}

// IsOpen reports whether the trade has no EXIT order yet.
func (t *Trade) IsOpen() bool {
	_, ok := t.Exit()
	return !ok
}

func (t *Trade) order(typ OrderType) (Order, bool) {
	for _, o := range t.Orders {
		if o.Type == typ {
			return o, true
		}
	}
	return Order{}, false
}

// Clone returns a deep copy so stores can hand out trades without sharing
// the orders slice.
func (t *Trade) Clone() *Trade {
	cp := *t
	cp.Orders = append([]Order(nil), t.Orders...)
	if t.Profit != nil {
		p := *t.Profit
		cp.Profit = &p
	}
	return &cp
}

// JSON returns the JSON-encoded trade (ignoring errors for hot-path usage).
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
