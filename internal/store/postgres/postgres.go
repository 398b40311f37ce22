// Package postgres is a model.TradeStore on PostgreSQL for deployments that
// share one trade history between several bot processes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"moneymaker/internal/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id             BIGSERIAL PRIMARY KEY,
		entry_strategy TEXT    NOT NULL,
		exit_strategy  TEXT    NOT NULL,
		period_ns      BIGINT  NOT NULL,
		profit         NUMERIC,
		closed         BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(entry_strategy, closed);

	CREATE TABLE IF NOT EXISTS trade_orders (
		id         BIGSERIAL PRIMARY KEY,
		trade_id   BIGINT      NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
		type       TEXT        NOT NULL,
		signal     TEXT        NOT NULL,
		price      NUMERIC     NOT NULL,
		volume     NUMERIC     NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		status     TEXT        NOT NULL,
		asset_code TEXT        NOT NULL
	);
`

// TradeStore keeps trades in the trades and trade_orders tables.
type TradeStore struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings the server and creates the tables when missing.
func New(ctx context.Context, dsn string) (*TradeStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgresql pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgresql: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	log.Printf("[postgres] connected")
	return &TradeStore{pool: pool}, nil
}

// Ping checks connectivity for health reporting.
func (s *TradeStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save writes t and replaces its orders in one transaction, assigning an ID
// when t.ID is zero.
func (s *TradeStore) Save(ctx context.Context, t *model.Trade) error {
	var profit *string
	if t.Profit != nil {
		p := t.Profit.String()
		profit = &p
	}
	closed := !t.IsOpen()
	id := t.ID
	orderIDs := make([]int64, len(t.Orders))

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if id == 0 {
			err := tx.QueryRow(ctx, `
				INSERT INTO trades (entry_strategy, exit_strategy, period_ns, profit, closed)
				VALUES ($1, $2, $3, $4::numeric, $5)
				RETURNING id
			`, t.EntryStrategy, t.ExitStrategy, int64(t.PeriodLength), profit, closed).Scan(&id)
			if err != nil {
				return fmt.Errorf("insert trade: %w", err)
			}
		} else {
			tag, err := tx.Exec(ctx, `
				UPDATE trades SET entry_strategy = $1, exit_strategy = $2, period_ns = $3, profit = $4::numeric, closed = $5
				WHERE id = $6
			`, t.EntryStrategy, t.ExitStrategy, int64(t.PeriodLength), profit, closed, id)
			if err != nil {
				return fmt.Errorf("update trade %d: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("update trade %d: %w", id, model.ErrTradeNotFound)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM trade_orders WHERE trade_id = $1`, id); err != nil {
				return fmt.Errorf("clear orders %d: %w", id, err)
			}
		}

		for i, o := range t.Orders {
			err := tx.QueryRow(ctx, `
				INSERT INTO trade_orders (trade_id, type, signal, price, volume, ts, status, asset_code)
				VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
				RETURNING id
			`, id, string(o.Type), string(o.Signal), o.Price.String(), o.Volume.String(), o.Time, string(o.Status), o.AssetCode).Scan(&orderIDs[i])
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres save trade: %w", err)
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
	var profit *string
	err := s.pool.QueryRow(ctx, `
		SELECT entry_strategy, exit_strategy, period_ns, profit::text FROM trades WHERE id = $1
	`, id).Scan(&t.EntryStrategy, &t.ExitStrategy, &period, &profit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres trade %d: %w", id, model.ErrTradeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get trade %d: %w", id, err)
	}
	t.PeriodLength = time.Duration(period)
	if profit != nil {
		p, err := decimal.NewFromString(*profit)
		if err != nil {
			return nil, fmt.Errorf("postgres trade %d profit: %w", id, err)
		}
		t.Profit = &p
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, signal, price::text, volume::text, ts, status, asset_code
		FROM trade_orders WHERE trade_id = $1 ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres query orders %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.Order
		var typ, sig, price, volume, status string
		if err := rows.Scan(&o.ID, &typ, &sig, &price, &volume, &o.Time, &status, &o.AssetCode); err != nil {
			return nil, fmt.Errorf("postgres scan order: %w", err)
		}
		o.Type, o.Signal, o.Status = model.OrderType(typ), model.Signal(sig), model.OrderStatus(status)
		o.Time = o.Time.UTC()
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("postgres order %d price: %w", o.ID, err)
		}
		if o.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("postgres order %d volume: %w", o.ID, err)
		}
		t.Orders = append(t.Orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query orders %d: %w", id, err)
	}
	return t, nil
}

func (s *TradeStore) OpenTrades(ctx context.Context, strategy string) ([]*model.Trade, error) {
	return s.query(ctx, `SELECT id FROM trades WHERE entry_strategy = $1 AND NOT closed ORDER BY id ASC`, strategy)
}

func (s *TradeStore) ClosedTrades(ctx context.Context) ([]*model.Trade, error) {
	return s.query(ctx, `SELECT id FROM trades WHERE closed ORDER BY id ASC`)
}

func (s *TradeStore) query(ctx context.Context, q string, args ...any) ([]*model.Trade, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query trades: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("postgres collect trade ids: %w", err)
	}

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

// Close closes the pool.
func (s *TradeStore) Close() error {
	s.pool.Close()
	return nil
}
