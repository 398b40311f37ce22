package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// PriceStore is a model.PriceStore backed by the prices table.
type PriceStore struct {
	db *sql.DB
}

// NewPriceStore opens (or creates) the database at path.
func NewPriceStore(path string) (*PriceStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &PriceStore{db: db}, nil
}

// NewPriceStoreFromDB wraps an already opened database.
func NewPriceStoreFromDB(db *sql.DB) *PriceStore {
	return &PriceStore{db: db}
}

// WriteTicks inserts ticks for asset in a single transaction. A tick at an
// existing timestamp replaces the stored price.
func (s *PriceStore) WriteTicks(ctx context.Context, asset string, ticks []timeframe.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite write ticks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices (asset, ts, price) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare ticks: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, asset, t.Time.UnixNano(), t.Value.String()); err != nil {
			return fmt.Errorf("sqlite insert tick: %w", err)
		}
	}
	return tx.Commit()
}

// ReadTicks returns the ticks for asset at or after since, ordered by time
// ascending for correct replay order. A zero since reads everything.
func (s *PriceStore) ReadTicks(ctx context.Context, asset string, since time.Time) ([]timeframe.Tick, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price FROM prices
		WHERE asset = ? AND ts >= ?
		ORDER BY ts ASC
	`, asset, from)
	if err != nil {
		return nil, fmt.Errorf("sqlite query prices: %w", err)
	}
	defer rows.Close()

	var ticks []timeframe.Tick
	for rows.Next() {
		var ts int64
		var price string
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("sqlite scan price: %w", err)
		}
		v, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("sqlite price at %d: %w", ts, err)
		}
		ticks = append(ticks, timeframe.NewTick(time.Unix(0, ts).UTC(), v))
	}
	return ticks, rows.Err()
}

// LastTimestamp returns the newest stored tick time for asset, or the zero
// time when none exist.
func (s *PriceStore) LastTimestamp(ctx context.Context, asset string) (time.Time, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM prices WHERE asset = ?`, asset).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("sqlite last price: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ts.Int64).UTC(), nil
}

// Record reads ticks from tickCh and inserts them in batched transactions.
// Flushes every batch of defaultBatchSize ticks or every defaultFlushDelay,
// whichever comes first. Blocks until ctx is cancelled or tickCh is closed.
func (s *PriceStore) Record(ctx context.Context, asset string, tickCh <-chan timeframe.Tick) {
	batch := make([]timeframe.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The caller's context may already be cancelled on the final flush.
		if err := s.WriteTicks(context.Background(), asset, batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case tick, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tick)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (s *PriceStore) Close() error {
	return s.db.Close()
}
