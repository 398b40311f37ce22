package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType marks where an order sits in a trade's lifecycle.
type OrderType string

const (
	OrderEntry        OrderType = "ENTRY"
	OrderIntermediate OrderType = "INTERMEDIATE"
	OrderExit         OrderType = "EXIT"
)

// OrderStatus is the execution state of an order.
type OrderStatus string

const (
	StatusPlaced   OrderStatus = "PLACED"
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
)

// Order is one leg of a trade.
type Order struct {
	ID        int64           `json:"id"`
	Type      OrderType       `json:"type"`
	Signal    Signal          `json:"signal"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Time      time.Time       `json:"time"`
	Status    OrderStatus     `json:"status"`
	AssetCode string          `json:"asset_code"`
}
