// Package metrics exposes the bot's Prometheus metrics and health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trading bot.
type Metrics struct {
	Evaluations      *prometheus.CounterVec // labels: strategy
	Signals          *prometheus.CounterVec // labels: strategy, signal
	EvaluationErrors *prometheus.CounterVec // labels: strategy
	FeedErrors       prometheus.Counter
	TradesOpened     prometheus.Counter
	TradesClosed     prometheus.Counter

	EvaluationDur prometheus.Histogram
	TimeframeFill *prometheus.GaugeVec // labels: strategy

	// Circuit breaker (0=closed, 1=open, 2=half-open)
	RedisCircuitBreakerState prometheus.Gauge
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneymaker_evaluations_total",
			Help: "Strategy evaluations run",
		}, []string{"strategy"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneymaker_signals_total",
			Help: "Signals emitted by strategy and direction",
		}, []string{"strategy", "signal"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moneymaker_evaluation_errors_total",
			Help: "Strategy evaluations that returned an error",
		}, []string{"strategy"}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymaker_feed_errors_total",
			Help: "Failed price fetches",
		}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymaker_trades_opened_total",
			Help: "Trades opened",
		}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymaker_trades_closed_total",
			Help: "Trades closed",
		}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moneymaker_evaluation_duration_seconds",
			Help:    "Time spent on one evaluation cycle (exits and entry)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		TimeframeFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moneymaker_timeframe_fill",
			Help: "Ticks held in the strategy timeframe",
		}, []string{"strategy"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moneymaker_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moneymaker_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.Evaluations,
		m.Signals,
		m.EvaluationErrors,
		m.FeedErrors,
		m.TradesOpened,
		m.TradesClosed,
		m.EvaluationDur,
		m.TimeframeFill,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// BreakerState records a circuit breaker transition. Use it as the
// breaker's state-change hook.
func (m *Metrics) BreakerState(state int, open bool) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if open {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
