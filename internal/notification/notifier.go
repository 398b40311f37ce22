// Package notification delivers trading alerts to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"moneymaker/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier. All notifiers are tried; the
// returned error joins every failure.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TradeOpened describes a newly opened trade.
func TradeOpened(t *model.Trade) Alert {
	entry, _ := t.Entry()
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s opened trade %d", t.EntryStrategy, t.ID),
		Message: fmt.Sprintf("%s %s at %s", entry.Signal, entry.AssetCode, entry.Price),
	}
}

// TradeClosed describes a closed trade and its profit.
func TradeClosed(t *model.Trade) Alert {
	exit, _ := t.Exit()
	profit := "n/a"
	if t.Profit != nil {
		profit = t.Profit.StringFixed(2) + "%"
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s closed trade %d", t.ExitStrategy, t.ID),
		Message: fmt.Sprintf("%s %s at %s, profit %s", exit.Signal, exit.AssetCode, exit.Price, profit),
	}
}
