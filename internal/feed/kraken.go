package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"moneymaker/internal/timeframe"
)

// ohlcIntervals are the candle widths Kraken serves, in minutes.
var ohlcIntervals = []int{1, 5, 15, 30, 60, 240, 1440, 10080, 21600}

// KrakenClient reads Kraken's public market-data REST endpoints. It never
// authenticates.
type KrakenClient struct {
	baseURL string
	pair    string
	http    *http.Client
	now     func() time.Time
}

// NewKrakenClient creates a client for pair (e.g. "XBTGBP").
func NewKrakenClient(baseURL, pair string, timeout time.Duration) *KrakenClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KrakenClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		pair:    pair,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// LatestPrice returns the last trade price from /0/public/Ticker, stamped
// with the local clock.
func (k *KrakenClient) LatestPrice(ctx context.Context) (timeframe.Tick, error) {
	result, err := k.get(ctx, "/0/public/Ticker", url.Values{"pair": {k.pair}})
	if err != nil {
		return timeframe.Tick{}, err
	}

	var last gjson.Result
	result.ForEach(func(_, pair gjson.Result) bool {
		last = pair.Get("c.0")
		return false
	})
	if !last.Exists() {
		return timeframe.Tick{}, fmt.Errorf("kraken ticker %s: %w", k.pair, ErrNoPrice)
	}
	price, err := decimal.NewFromString(last.String())
	if err != nil {
		return timeframe.Tick{}, fmt.Errorf("kraken ticker %s price %q: %w", k.pair, last.String(), err)
	}
	return timeframe.NewTick(k.now().UTC(), price), nil
}

// History returns candle close prices from /0/public/OHLC. interval is
// snapped down to the nearest width Kraken supports (minimum one minute).
func (k *KrakenClient) History(ctx context.Context, interval time.Duration, since time.Time) ([]timeframe.Tick, error) {
	q := url.Values{
		"pair":     {k.pair},
		"interval": {strconv.Itoa(OHLCInterval(interval))},
	}
	if !since.IsZero() {
		q.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	result, err := k.get(ctx, "/0/public/OHLC", q)
	if err != nil {
		return nil, err
	}

	var ticks []timeframe.Tick
	var parseErr error
	result.ForEach(func(key, rows gjson.Result) bool {
		if key.String() == "last" {
			return true
		}
		for _, row := range rows.Array() {
			// [time, open, high, low, close, vwap, volume, count]
			price, err := decimal.NewFromString(row.Get("4").String())
			if err != nil {
				parseErr = fmt.Errorf("kraken ohlc %s close %q: %w", k.pair, row.Get("4").String(), err)
				return false
			}
			ticks = append(ticks, timeframe.NewTick(time.Unix(row.Get("0").Int(), 0).UTC(), price))
		}
		return false
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return ticks, nil
}

// OHLCInterval returns the largest Kraken candle width, in minutes, that
// does not exceed d.
func OHLCInterval(d time.Duration) int {
	minutes := int(d / time.Minute)
	best := ohlcIntervals[0]
	for _, iv := range ohlcIntervals {
		if iv <= minutes {
			best = iv
		}
	}
	return best
}

// get performs a GET and returns the "result" object, turning a non-empty
// "error" array into an error.
func (k *KrakenClient) get(ctx context.Context, path string, q url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kraken %s: %w", path, err)
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kraken %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("kraken %s read: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("kraken %s: status %d", path, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("kraken %s: invalid JSON response", path)
	}

	doc := gjson.ParseBytes(body)
	if errs := doc.Get("error").Array(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.String()
		}
		return gjson.Result{}, fmt.Errorf("kraken %s: %s", path, strings.Join(msgs, "; "))
	}
	return doc.Get("result"), nil
}
