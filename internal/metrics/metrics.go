package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tochka"

// Collector bundles every Prometheus metric the exchange exposes.
type Collector struct {
	OrdersTotal *prometheus.CounterVec
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec
	TradeValue  *prometheus.CounterVec

	PlacementRetries   prometheus.Counter
	PlacementConflicts prometheus.Counter

	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
}

var (
	collector *Collector
	once      sync.Once
)

// Get returns the process-wide collector, registering all metrics on first
// use.
func Get() *Collector {
	once.Do(func() {
		collector = newCollector()
		collector.register()
	})
	return collector
}

func newCollector() *Collector {
	return &Collector{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders admitted, labeled by outcome status.",
		}, []string{"ticker", "direction", "type", "status"}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed per ticker.",
		}, []string{"ticker"}),

		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_volume_units",
			Help:      "Units traded per ticker.",
		}, []string{"ticker"}),

		TradeValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_value_rub",
			Help:      "Quote currency value traded per ticker.",
		}, []string{"ticker"}),

		PlacementRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_retries_total",
			Help:      "Placement attempts retried after a transaction conflict.",
		}),

		PlacementConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_conflicts_total",
			Help:      "Placements abandoned after exhausting retries.",
		}),

		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),

		APIRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (c *Collector) register() {
	prometheus.MustRegister(
		c.OrdersTotal,
		c.TradesTotal,
		c.TradeVolume,
		c.TradeValue,
		c.PlacementRetries,
		c.PlacementConflicts,
		c.APIRequestsTotal,
		c.APIRequestLatency,
	)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
