// cmd/backtest replays recorded prices through one strategy on paper and
// prints the result, without live market data.
//
// Usage:
//
//	go run ./cmd/backtest --csv=prices.csv --strategy=GoldenCross
//	go run ./cmd/backtest --db=data/moneymaker.db --asset=XBTGBP --speed=100
//	go run ./cmd/backtest --csv=prices.csv --window=55
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moneymaker/config"
	"moneymaker/internal/backtest"
	"moneymaker/internal/execution"
	"moneymaker/internal/feed"
	sqlitestore "moneymaker/internal/store/sqlite"
	"moneymaker/internal/strategy"
	"moneymaker/internal/timeframe"
	"moneymaker/internal/trade"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "CSV of epoch-seconds,price rows")
	dbPath := flag.String("db", "", "SQLite database with recorded prices")
	asset := flag.String("asset", "", "Asset code to read from --db (default TRADE_ASSET_CODE)")
	name := flag.String("strategy", config.GoldenCrossName, "Entry strategy to test")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	window := flag.Int("window", 0, "Run the windowed tester from this prefix length instead (0=off)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	if *asset == "" {
		*asset = cfg.Trade.AssetCode
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ticks, err := loadTicks(ctx, *csvPath, *dbPath, *asset)
	if err != nil {
		log.Fatalf("[backtest] load prices: %v", err)
	}

	store := trade.NewMemoryStore()
	set, err := strategy.Build(cfg, store)
	if err != nil {
		log.Fatalf("[backtest] strategies: %v", err)
	}
	entry := find(set, *name)
	if entry == nil {
		log.Fatalf("[backtest] strategy %q is not enabled", *name)
	}
	ticks = feed.Resample(ticks, entry.PeriodLength())
	log.Printf("[backtest] %d ticks at %s for %s", len(ticks), entry.PeriodLength(), entry.Name())

	if *window > 0 {
		runWindowed(entry, ticks, *window)
		return
	}

	exit, _ := set.ExitFor(entry)
	exec := execution.NewPaperExecutor(execution.PaperConfig{
		AssetCode:   *asset,
		Volume:      cfg.Trade.Volume,
		SlippageBps: cfg.Trade.SlippageBps,
	}, store)
	h, err := backtest.NewHistoric(entry, exit, store, exec)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	tickCh := make(chan timeframe.Tick, 10000)
	go func() {
		if err := feed.NewReplayer(ticks).Run(ctx, *speed, tickCh); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
	}()

	start := time.Now()
	report, err := h.RunStream(ctx, tickCh)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Strategy:          %-16s ║\n", report.Strategy)
	fmt.Printf("║  Ticks processed:   %-16d ║\n", report.Ticks)
	fmt.Printf("║  Evaluations:       %-16d ║\n", report.Evaluations)
	fmt.Printf("║  Signals:           %-16d ║\n", report.Signals)
	fmt.Printf("║  Trades (open):     %-16s ║\n", fmt.Sprintf("%d (%d)", report.Trades, report.Open))
	fmt.Printf("║  Wins / losses:     %-16s ║\n", fmt.Sprintf("%d / %d", report.Wins, report.Losses))
	fmt.Printf("║  Balance:           %-16s ║\n", report.Balance.StringFixed(2))
	fmt.Printf("║  Elapsed:           %-16s ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

func loadTicks(ctx context.Context, csvPath, dbPath, asset string) ([]timeframe.Tick, error) {
	switch {
	case csvPath != "":
		return feed.LoadCSV(csvPath)
	case dbPath != "":
		prices, err := sqlitestore.NewPriceStore(dbPath)
		if err != nil {
			return nil, err
		}
		defer prices.Close()
		return prices.ReadTicks(ctx, asset, time.Time{})
	default:
		return nil, fmt.Errorf("one of --csv or --db is required")
	}
}

func find(set *strategy.Set, name string) strategy.Entry {
	for _, e := range set.Entries {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func runWindowed(entry strategy.Entry, ticks []timeframe.Tick, start int) {
	tf, err := timeframe.NewWithTicks(max(len(ticks), 1), ticks)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	signals, err := backtest.Windowed{Entry: entry}.Run(tf, start)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	for _, s := range signals {
		fmt.Printf("  [%s] window %4d  %-4s at %s\n", s.Tick.Time.Format(time.RFC3339), s.Index, s.Signal, s.Tick.Value)
	}
	fmt.Printf("%d signals\n", len(signals))
}
