package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"moneymaker/internal/timeframe"
)

const (
	streamWriteWait  = 5 * time.Second
	streamReadWait   = 60 * time.Second
	maxRetryDelay    = time.Minute
	initialRetryWait = time.Second
)

// KrakenStream keeps the last traded price from Kraken's websocket v2 ticker
// channel. Run owns the connection; LatestPrice may be called from any
// goroutine.
type KrakenStream struct {
	url    string
	symbol string
	dialer *websocket.Dialer
	now    func() time.Time

	mu   sync.RWMutex
	last timeframe.Tick
	seen bool

	// OnTick, when set, receives every price update from the read loop.
	OnTick func(timeframe.Tick)
	// OnReconnect, when set, is called before each reconnect attempt.
	OnReconnect func()
}

// NewKrakenStream creates a stream for symbol (e.g. "BTC/GBP").
func NewKrakenStream(wsURL, symbol string) *KrakenStream {
	return &KrakenStream{
		url:    wsURL,
		symbol: symbol,
		dialer: websocket.DefaultDialer,
		now:    time.Now,
	}
}

// LatestPrice returns the most recent ticker price.
func (s *KrakenStream) LatestPrice(context.Context) (timeframe.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return timeframe.Tick{}, ErrNoPrice
	}
	return s.last, nil
}

// Run connects and reads ticker updates until ctx is cancelled, reconnecting
// with exponential backoff when the connection drops.
func (s *KrakenStream) Run(ctx context.Context) error {
	delay := initialRetryWait
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[kraken-ws] connection lost: %v (retry in %s)", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (s *KrakenStream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
		conn.Close()
	})
	defer stop()

	sub := map[string]any{
		"method": "subscribe",
		"params": map[string]any{"channel": "ticker", "symbol": []string{s.symbol}},
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("[kraken-ws] connected, subscribed to ticker %s", s.symbol)

	for {
		conn.SetReadDeadline(time.Now().Add(streamReadWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handle(msg)
	}
}

// handle applies one websocket message. Heartbeats, acks and other
// channels are ignored.
func (s *KrakenStream) handle(msg []byte) {
	if !gjson.ValidBytes(msg) {
		log.Printf("[kraken-ws] invalid message: %.120s", msg)
		return
	}
	doc := gjson.ParseBytes(msg)
	if doc.Get("method").String() == "subscribe" && !doc.Get("success").Bool() {
		log.Printf("[kraken-ws] subscribe rejected: %s", doc.Get("error").String())
		return
	}
	if doc.Get("channel").String() != "ticker" {
		return
	}

	for _, d := range doc.Get("data").Array() {
		if d.Get("symbol").String() != s.symbol || !d.Get("last").Exists() {
			continue
		}
		price, err := decimal.NewFromString(d.Get("last").Raw)
		if err != nil {
			log.Printf("[kraken-ws] parse price %q: %v", d.Get("last").Raw, err)
			continue
		}
		tick := timeframe.NewTick(s.now().UTC(), price)

		s.mu.Lock()
		s.last, s.seen = tick, true
		s.mu.Unlock()

		if s.OnTick != nil {
			s.OnTick(tick)
		}
	}
}
