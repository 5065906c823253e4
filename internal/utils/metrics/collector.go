// internal/utils/metrics/collector.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType представляет тип метрики
type MetricType string

const (
	PriceFetchCounterType   MetricType = "price_fetch_counter"
	ExitCounterType         MetricType = "exit_counter"
	ExitFailureCounterType  MetricType = "exit_failure_counter"
	TradeCounterType        MetricType = "trade_counter"
	TradeDurationType       MetricType = "trade_duration"
	ValidationCounterType   MetricType = "validation_counter"
	ActivePositionGaugeType MetricType = "active_positions"
)

// Collector управляет набором метрик ассистента. Все методы допускают
// nil-получателя, поэтому компоненты работают и без метрик.
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry

	priceFetches   *prometheus.CounterVec
	exits          *prometheus.CounterVec
	exitFailures   *prometheus.CounterVec
	trades         *prometheus.CounterVec
	tradeDuration  *prometheus.HistogramVec
	validations    *prometheus.CounterVec
	activePosition prometheus.Gauge
}

// NewCollector создает коллектор со своим реестром.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	c.priceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pump_assistant",
			Name:      "price_fetches_total",
			Help:      "Price lookups by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	c.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pump_assistant",
			Name:      "exits_total",
			Help:      "Confirmed position exits by reason",
		},
		[]string{"reason"},
	)
	c.exitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pump_assistant",
			Name:      "exit_failures_total",
			Help:      "Failed sell attempts during exit by reason",
		},
		[]string{"reason"},
	)
	c.trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pump_assistant",
			Name:      "trades_total",
			Help:      "Trades by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	c.tradeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pump_assistant",
			Name:      "trade_duration_seconds",
			Help:      "Trade duration from build request to confirmation",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"action"},
	)
	c.validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pump_assistant",
			Name:      "validations_total",
			Help:      "Token validations by outcome",
		},
		[]string{"outcome"},
	)
	c.activePosition = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pump_assistant",
			Name:      "active_positions",
			Help:      "Number of positions currently held",
		},
	)

	metricsMap := map[MetricType]prometheus.Collector{
		PriceFetchCounterType:   c.priceFetches,
		ExitCounterType:         c.exits,
		ExitFailureCounterType:  c.exitFailures,
		TradeCounterType:        c.trades,
		TradeDurationType:       c.tradeDuration,
		ValidationCounterType:   c.validations,
		ActivePositionGaugeType: c.activePosition,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
}

// Registry возвращает реестр для экспорта.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		case prometheus.Gauge:
			m.Set(0)
		}
		return true
	})
}

// RecordPriceFetch учитывает результат запроса цены у источника.
func (c *Collector) RecordPriceFetch(source string, success bool) {
	if c == nil {
		return
	}
	c.priceFetches.WithLabelValues(source, outcome(success)).Inc()
}

// RecordExit учитывает подтвержденный выход из позиции.
func (c *Collector) RecordExit(reason string) {
	if c == nil {
		return
	}
	c.exits.WithLabelValues(reason).Inc()
}

// RecordExitFailure учитывает неудачную попытку продажи при выходе.
func (c *Collector) RecordExitFailure(reason string) {
	if c == nil {
		return
	}
	c.exitFailures.WithLabelValues(reason).Inc()
}

// RecordTrade records trade outcome and latency
func (c *Collector) RecordTrade(action string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	c.trades.WithLabelValues(action, outcome(success)).Inc()
	c.tradeDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordValidation: outcome is "valid", "invalid" or "degraded".
func (c *Collector) RecordValidation(result string) {
	if c == nil {
		return
	}
	c.validations.WithLabelValues(result).Inc()
}

// SetActivePositions обновляет gauge открытых позиций.
func (c *Collector) SetActivePositions(n int) {
	if c == nil {
		return
	}
	c.activePosition.Set(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
