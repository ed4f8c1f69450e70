package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kynara/internal/domain"
)

func TestPublishSendsFormattedMessage(t *testing.T) {
	var gotPath string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "token123", "42")
	err := n.Publish(context.Background(), domain.OrderEvent{
		Type:    domain.EventOrderStatusChanged,
		Email:   "ana@x.com",
		OrderID: "1767323045000",
		Status:  domain.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if body["chat_id"] != "42" {
		t.Fatalf("chat_id = %q", body["chat_id"])
	}
	if body["text"] != "Order 1767323045000 for ana@x.com is now shipped" {
		t.Fatalf("text = %q", body["text"])
	}
}

func TestPublishReportsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "bad", "42")
	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestUnconfiguredNotifierIsNoop(t *testing.T) {
	n := NewNotifier("", "", "")
	if n.Enabled() {
		t.Fatal("expected disabled notifier")
	}
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestFormatPlacedEvent(t *testing.T) {
	text := FormatEvent(domain.OrderEvent{Type: domain.EventOrderPlaced, OrderID: "1", Email: "ana@x.com", Total: 1732500})
	if !strings.HasPrefix(text, "New order 1 from ana@x.com: Rp ") {
		t.Fatalf("text = %q", text)
	}
}
