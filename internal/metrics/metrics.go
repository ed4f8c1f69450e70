// Package metrics exposes storefront counters for Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kynara/internal/domain"
)

// Recorder is what the storefront and transports report to.
type Recorder interface {
	OrderEvent(ctx context.Context, ev domain.OrderEvent)
	RecordAuth(action string, ok bool)
	RecordCheckoutRejected(reason string)
	RecordEventDelivery(sink string, ok bool)
	RecordHTTPRequest(statusCode int, duration time.Duration)
}

type Collector struct {
	ordersPlaced      prometheus.Counter
	orderValue        prometheus.Counter
	statusTransitions *prometheus.CounterVec
	authAttempts      *prometheus.CounterVec
	checkoutRejected  *prometheus.CounterVec
	eventDeliveries   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kynara_orders_placed_total",
			Help: "Orders placed.",
		}),
		orderValue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kynara_order_value_rupiah_total",
			Help: "Sum of placed order totals in rupiah.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kynara_order_status_transitions_total",
			Help: "Fulfillment status changes by target status.",
		}, []string{"status"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kynara_auth_attempts_total",
			Help: "Login and signup attempts by outcome.",
		}, []string{"action", "outcome"}),
		checkoutRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kynara_checkout_rejected_total",
			Help: "Checkout attempts rejected before an order was placed.",
		}, []string{"reason"}),
		eventDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kynara_event_deliveries_total",
			Help: "Order event deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kynara_http_requests_total",
			Help: "API responses by status code.",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kynara_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.ordersPlaced,
		c.orderValue,
		c.statusTransitions,
		c.authAttempts,
		c.checkoutRejected,
		c.eventDeliveries,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) OrderEvent(ctx context.Context, ev domain.OrderEvent) {
	switch ev.Type {
	case domain.EventOrderPlaced:
		c.ordersPlaced.Inc()
		c.orderValue.Add(float64(ev.Total))
	case domain.EventOrderStatusChanged:
		c.statusTransitions.WithLabelValues(string(ev.Status)).Inc()
	}
}

func (c *Collector) RecordAuth(action string, ok bool) {
	c.authAttempts.WithLabelValues(action, outcome(ok)).Inc()
}

func (c *Collector) RecordCheckoutRejected(reason string) {
	c.checkoutRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordEventDelivery(sink string, ok bool) {
	c.eventDeliveries.WithLabelValues(sink, outcome(ok)).Inc()
}

func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler serves the gathered metrics for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) OrderEvent(context.Context, domain.OrderEvent) {}
func (Nop) RecordAuth(string, bool) {}
func (Nop) RecordCheckoutRejected(string) {}
func (Nop) RecordEventDelivery(string, bool) {}
func (Nop) RecordHTTPRequest(int, time.Duration) {}
