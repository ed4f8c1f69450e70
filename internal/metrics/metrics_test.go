package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"kynara/internal/domain"
)

func TestOrderEvent_CountsPlacementsAndTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	ctx := context.Background()

	c.OrderEvent(ctx, domain.OrderEvent{Type: domain.EventOrderPlaced, Total: 1732500})
	c.OrderEvent(ctx, domain.OrderEvent{Type: domain.EventOrderPlaced, Total: 412500})
	c.OrderEvent(ctx, domain.OrderEvent{Type: domain.EventOrderStatusChanged, Status: domain.OrderStatusShipped})

	if got := testutil.ToFloat64(c.ordersPlaced); got != 2 {
		t.Fatalf("orders placed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.orderValue); got != 2145000 {
		t.Fatalf("order value = %v, want 2145000", got)
	}
	if got := testutil.ToFloat64(c.statusTransitions.WithLabelValues("shipped")); got != 1 {
		t.Fatalf("shipped transitions = %v, want 1", got)
	}
}

func TestRecordAuth_LabelsOutcome(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.RecordAuth("login", true)
	c.RecordAuth("login", false)
	c.RecordAuth("login", false)

	if got := testutil.ToFloat64(c.authAttempts.WithLabelValues("login", "failure")); got != 2 {
		t.Fatalf("login failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.authAttempts.WithLabelValues("login", "success")); got != 1 {
		t.Fatalf("login successes = %v, want 1", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTPRequest(http.StatusOK, 20*time.Millisecond)
	c.RecordCheckoutRejected("empty_cart")
	c.RecordEventDelivery("webhook", true)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		`kynara_http_requests_total{status_code="200"} 1`,
		`kynara_checkout_rejected_total{reason="empty_cart"} 1`,
		`kynara_event_deliveries_total{outcome="success",sink="webhook"} 1`,
		"kynara_http_request_duration_seconds_count 1",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("scrape output missing %q", name)
		}
	}
}
