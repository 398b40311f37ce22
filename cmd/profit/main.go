// cmd/profit compounds a starting balance over every closed trade in the
// configured trade store and prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneymaker/config"
	"moneymaker/internal/model"
	"moneymaker/internal/store/postgres"
	sqlitestore "moneymaker/internal/store/sqlite"
	"moneymaker/internal/trade"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	balance := flag.String("balance", trade.DefaultBalance.String(), "Starting balance")
	fee := flag.String("fee", trade.DefaultFee.String(), "Fee charged per trade, as a fraction of the balance")
	flag.Parse()

	start, err := decimal.NewFromString(*balance)
	if err != nil {
		log.Fatalf("[profit] --balance: %v", err)
	}
	feeFrac, err := decimal.NewFromString(*fee)
	if err != nil {
		log.Fatalf("[profit] --fee: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[profit] config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[profit] %v", err)
	}
	defer store.Close()

	closed, err := store.ClosedTrades(ctx)
	if err != nil {
		log.Fatalf("[profit] closed trades: %v", err)
	}

	final := trade.Compound(start, feeFrac, closed)
	fmt.Printf("closed trades: %d\n", len(closed))
	fmt.Printf("balance:       %s -> %s\n", start.StringFixed(2), final.StringFixed(2))
}

func openStore(ctx context.Context, cfg *config.Config) (model.TradeStore, error) {
	if strings.EqualFold(cfg.App.TradeStore, "postgres") {
		return postgres.New(ctx, cfg.Postgres.DSN)
	}
	return sqlitestore.NewTradeStore(cfg.SQLite.Path)
}
