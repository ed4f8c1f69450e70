package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kynara/internal/catalog"
	"kynara/internal/domain"
)

const defaultBaseURL = "https://api.telegram.org"

type Notifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

func NewNotifier(baseURL, botToken, chatID string) *Notifier {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Notifier{
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// Notify sends text to the configured chat. It is a no-op when unconfigured.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if !n.Enabled() || text == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage returned status %d", resp.StatusCode)
	}
	return nil
}

// Publish formats an order event for the operator chat.
func (n *Notifier) Publish(ctx context.Context, ev domain.OrderEvent) error {
	return n.Notify(ctx, FormatEvent(ev))
}

func FormatEvent(ev domain.OrderEvent) string {
	switch ev.Type {
	case domain.EventOrderPlaced:
		return fmt.Sprintf("New order %s from %s: %s", ev.OrderID, ev.Email, catalog.FormatRupiah(ev.Total))
	case domain.EventOrderStatusChanged:
		return fmt.Sprintf("Order %s for %s is now %s", ev.OrderID, ev.Email, ev.Status)
	default:
		return ""
	}
}
