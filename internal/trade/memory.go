package trade

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"moneymaker/internal/model"
)

// MemoryStore is a model.TradeStore kept in process memory. Backtests use it
// so a run leaves nothing behind.
type MemoryStore struct {
	mu     sync.RWMutex
	trades map[int64]*model.Trade
	nextID int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[int64]*model.Trade)}
}

// Save stores a copy of t, assigning an ID when t.ID is zero.
func (m *MemoryStore) Save(_ context.Context, t *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == 0 {
		m.nextID++
		t.ID = m.nextID
	} else if t.ID > m.nextID {
		m.nextID = t.ID
	}
	m.trades[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) Trade(_ context.Context, id int64) (*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("memory store trade %d: %w", id, model.ErrTradeNotFound)
	}
	return t.Clone(), nil
}

func (m *MemoryStore) OpenTrades(_ context.Context, strategy string) ([]*model.Trade, error) {
	return m.filter(func(t *model.Trade) bool {
		return t.IsOpen() && t.EntryStrategy == strategy
	}), nil
}

func (m *MemoryStore) ClosedTrades(_ context.Context) ([]*model.Trade, error) {
	return m.filter(func(t *model.Trade) bool { return !t.IsOpen() }), nil
}

// All returns every stored trade, oldest first.
func (m *MemoryStore) All() []*model.Trade {
	return m.filter(func(*model.Trade) bool { return true })
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) filter(keep func(*model.Trade) bool) []*model.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Trade
	for _, t := range m.trades {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
