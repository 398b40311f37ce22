package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/internal/model"
)

// TradeStore is a model.TradeStore backed by the trades and trade_orders
// tables.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore opens (or creates) the database at path.
func NewTradeStore(path string) (*TradeStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &TradeStore{db: db}, nil
}

// NewTradeStoreFromDB wraps an already opened database, so trades and prices
// can share one connection.
func NewTradeStoreFromDB(db *sql.DB) *TradeStore {
	return &TradeStore{db: db}
}

// DB returns the underlying sql.DB for health checks.
func (s *TradeStore) DB() *sql.DB { return s.db }

// Save writes t and replaces its orders in one transaction. A zero t.ID
// inserts a new row and assigns the generated ID to t.
func (s *TradeStore) Save(ctx context.Context, t *model.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save trade: %w", err)
	}
	defer tx.Rollback()

	var profit sql.NullString
	if t.Profit != nil {
		profit = sql.NullString{String: t.Profit.String(), Valid: true}
	}
	closed := 0
	if !t.IsOpen() {
		closed = 1
	}

	id := t.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trades (entry_strategy, exit_strategy, period_ns, profit, closed)
			VALUES (?, ?, ?, ?, ?)
		`, t.EntryStrategy, t.ExitStrategy, int64(t.PeriodLength), profit, closed)
		if err != nil {
			return fmt.Errorf("sqlite insert trade: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlite insert trade id: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE trades SET entry_strategy = ?, exit_strategy = ?, period_ns = ?, profit = ?, closed = ?
			WHERE id = ?
		`, t.EntryStrategy, t.ExitStrategy, int64(t.PeriodLength), profit, closed, id)
		if err != nil {
			return fmt.Errorf("sqlite update trade %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("sqlite update trade %d: %w", id, model.ErrTradeNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trade_orders WHERE trade_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite clear orders %d: %w", id, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_orders (trade_id, type, signal, price, volume, ts, status, asset_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare orders: %w", err)
	}
	defer stmt.Close()

	orderIDs := make([]int64, len(t.Orders))
	for i, o := range t.Orders {
		res, err := stmt.ExecContext(ctx, id, string(o.Type), string(o.Signal), o.Price.String(), o.Volume.String(),
			o.Time.UnixNano(), string(o.Status), o.AssetCode)
		if err != nil {
			return fmt.Errorf("sqlite insert order: %w", err)
		}
		if orderIDs[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlite insert order id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit trade: %w", err)
	}
	t.ID = id
	for i := range t.Orders {
		t.Orders[i].ID = orderIDs[i]
	}
	return nil
}

// Trade loads one trade with its orders.
func (s *TradeStore) Trade(ctx context.Context, id int64) (*model.Trade, error) {
	t := &model.Trade{ID: id}
	var period int64
	var profit sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_strategy, exit_strategy, period_ns, profit FROM trades WHERE id = ?
	`, id).Scan(&t.EntryStrategy, &t.ExitStrategy, &period, &profit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite trade %d: %w", id, model.ErrTradeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get trade %d: %w", id, err)
	}
	t.PeriodLength = time.Duration(period)
	if profit.Valid {
		p, err := decimal.NewFromString(profit.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite trade %d profit: %w", id, err)
		}
		t.Profit = &p
	}

	if t.Orders, err = s.orders(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TradeStore) orders(ctx context.Context, tradeID int64) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, signal, price, volume, ts, status, asset_code
		FROM trade_orders WHERE trade_id = ? ORDER BY id ASC
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query orders %d: %w", tradeID, err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var typ, sig, price, volume, status string
		var ts int64
		if err := rows.Scan(&o.ID, &typ, &sig, &price, &volume, &ts, &status, &o.AssetCode); err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		o.Type, o.Signal, o.Status = model.OrderType(typ), model.Signal(sig), model.OrderStatus(status)
		o.Time = time.Unix(0, ts).UTC()
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite order %d price: %w", o.ID, err)
		}
		if o.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("sqlite order %d volume: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *TradeStore) OpenTrades(ctx context.Context, strategy string) ([]*model.Trade, error) {
	return s.query(ctx, `SELECT id FROM trades WHERE entry_strategy = ? AND closed = 0 ORDER BY id ASC`, strategy)
}

func (s *TradeStore) ClosedTrades(ctx context.Context) ([]*model.Trade, error) {
	return s.query(ctx, `SELECT id FROM trades WHERE closed = 1 ORDER BY id ASC`)
}

func (s *TradeStore) query(ctx context.Context, q string, args ...any) ([]*model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite scan trade id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}

	// One connection: the id cursor is drained before loading each trade.
	trades := make([]*model.Trade, 0, len(ids))
	for _, id := range ids {
		t, err := s.Trade(ctx, id)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the database.
func (s *TradeStore) Close() error {
	return s.db.Close()
}
