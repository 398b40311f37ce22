package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/internal/timeframe"
)

// ReadCSV parses "unix_seconds,price" rows. A first row whose time column is
// not a number is treated as a header. Rows are returned sorted by time.
func ReadCSV(r io.Reader) ([]timeframe.Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var ticks []timeframe.Tick
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("csv line %d: want time,price got %d fields", line, len(rec))
		}

		sec, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("csv line %d time %q: %w", line, rec[0], err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("csv line %d price %q: %w", line, rec[1], err)
		}
		ts := time.Unix(0, int64(sec*float64(time.Second))).UTC()
		ticks = append(ticks, timeframe.NewTick(ts, price))
	}

	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Time.Before(ticks[j].Time) })
	return ticks, nil
}

// LoadCSV reads a price file from disk.
func LoadCSV(path string) ([]timeframe.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// CSVHistory serves history from ticks loaded with ReadCSV.
type CSVHistory struct {
	Ticks []timeframe.Tick
}

func (c CSVHistory) History(_ context.Context, interval time.Duration, since time.Time) ([]timeframe.Tick, error) {
	i := sort.Search(len(c.Ticks), func(i int) bool { return !c.Ticks[i].Time.Before(since) })
	return Resample(c.Ticks[i:], interval), nil
}
