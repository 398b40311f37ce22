// cmd/moneymaker runs the live paper-trading bot against Kraken prices.
//
// Configuration comes from the environment (and an optional .env file);
// see config.Config for every variable.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"moneymaker/config"
	"moneymaker/internal/bot"
	"moneymaker/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[moneymaker] config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		log.Printf("[moneymaker] %v, using info", err)
	}
	logger.Init(cfg.App.Name, level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	svc, err := bot.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[moneymaker] init failed: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[moneymaker] fatal: %v", err)
	}
}
