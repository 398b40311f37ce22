package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/internal/model"
	"moneymaker/internal/timeframe"
	"moneymaker/internal/trade"
)

var bpsDivisor = decimal.NewFromInt(10000)

// ErrAlreadyClosed is returned when closing a trade that has an EXIT order.
var ErrAlreadyClosed = errors.New("trade already closed")

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string          `json:"order_id"`
	TradeID   int64           `json:"trade_id"`
	Type      model.OrderType `json:"type"`
	Signal    model.Signal    `json:"signal"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Slippage  decimal.Decimal `json:"slippage"`
	FilledAt  time.Time       `json:"filled_at"`
}

// PaperConfig configures simulated execution.
type PaperConfig struct {
	AssetCode   string
	Volume      decimal.Decimal
	SlippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
}

// PaperExecutor simulates order execution without broker calls.
// Used for paper trading and backtests.
type PaperExecutor struct {
	cfg   PaperConfig
	store model.TradeStore

	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64
}

// NewPaperExecutor creates a paper executor saving trades to store.
func NewPaperExecutor(cfg PaperConfig, store model.TradeStore) *PaperExecutor {
	return &PaperExecutor{
		cfg:   cfg,
		store: store,
		fills: make([]Fill, 0, 64),
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func (p *PaperExecutor) Open(ctx context.Context, req OpenRequest) (*model.Trade, error) {
	if req.Signal.IsNone() {
		return nil, fmt.Errorf("paper open %s: no signal", req.Strategy)
	}
	price, slip := p.fillPrice(req.Signal, req.Tick.Value)
	t := &model.Trade{
		EntryStrategy: req.Strategy,
		ExitStrategy:  req.ExitStrategy,
		PeriodLength:  req.PeriodLength,
		Orders:        []model.Order{p.order(model.OrderEntry, req.Signal, price, req.Tick.Time)},
	}
	if err := p.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("paper open %s: %w", req.Strategy, err)
	}

	orderID := p.record(t.ID, model.OrderEntry, req.Signal, price, slip, req.Tick.Time)
	log.Printf("[paper] %s %s trade=%d price=%s (slip=%s) order=%s",
		req.Signal, req.Strategy, t.ID, price, slip, orderID)
	return t, nil
}

func (p *PaperExecutor) Close(ctx context.Context, t *model.Trade, sig model.Signal, tick timeframe.Tick) (*model.Trade, error) {
	if !t.IsOpen() {
		return nil, fmt.Errorf("paper close trade %d: %w", t.ID, ErrAlreadyClosed)
	}
	price, slip := p.fillPrice(sig, tick.Value)

	closed := t.Clone()
	closed.Orders = append(closed.Orders, p.order(model.OrderExit, sig, price, tick.Time))
	profit, err := trade.Profit(closed)
	if err != nil {
		return nil, fmt.Errorf("paper close trade %d: %w", t.ID, err)
	}
	closed.Profit = &profit
	if err := p.store.Save(ctx, closed); err != nil {
		return nil, fmt.Errorf("paper close trade %d: %w", t.ID, err)
	}

	orderID := p.record(closed.ID, model.OrderExit, sig, price, slip, tick.Time)
	log.Printf("[paper] %s close %s trade=%d price=%s (slip=%s) profit=%s%% order=%s",
		sig, closed.EntryStrategy, closed.ID, price, slip, profit.StringFixed(4), orderID)
	return closed, nil
}

// fillPrice applies slippage against the order direction: buys fill higher,
// sells lower.
func (p *PaperExecutor) fillPrice(sig model.Signal, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if p.cfg.SlippageBps <= 0 {
		return price, decimal.Zero
	}
	slip := price.Mul(decimal.NewFromInt(p.cfg.SlippageBps)).Div(bpsDivisor)
	if sig == model.SignalBuy {
		return price.Add(slip), slip
	}
	return price.Sub(slip), slip
}

func (p *PaperExecutor) order(typ model.OrderType, sig model.Signal, price decimal.Decimal, at time.Time) model.Order {
	return model.Order{
		Type:      typ,
		Signal:    sig,
		Price:     price,
		Volume:    p.cfg.Volume,
		Time:      at,
		Status:    model.StatusFilled,
		AssetCode: p.cfg.AssetCode,
	}
}

func (p *PaperExecutor) record(tradeID int64, typ model.OrderType, sig model.Signal, price, slip decimal.Decimal, at time.Time) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.fills = append(p.fills, Fill{
		OrderID:   orderID,
		TradeID:   tradeID,
		Type:      typ,
		Signal:    sig,
		FillPrice: price,
		Slippage:  slip,
		FilledAt:  at,
	})
	return orderID
}
