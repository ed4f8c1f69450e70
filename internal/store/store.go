package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("corrupt value")
)

// Keys shared by every backend. Values are JSON documents.
const (
	KeyIdentities     = "session_identities"
	KeyCurrentSession = "session_current"
	ordersKeyPrefix   = "orders_"
)

// OrdersKey is the ledger key scoped to one identity.
func OrdersKey(email string) string {
	return ordersKeyPrefix + email
}

// Store defines the string-keyed persistence contract used by the services.
// Get returns ErrNotFound for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LoadJSON decodes the value under key into target. Absent, undecodable and
// corrupt values all report found=false so callers fail closed; only backend
// failures are returned as errors.
func LoadJSON(ctx context.Context, st Store, key string, target any) (bool, error) {
	raw, err := st.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if errors.Is(err, ErrCorrupt) {
		slog.Warn("ignoring corrupt stored value", slog.String("key", key), slog.String("error", err.Error()))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		slog.Warn("ignoring unparseable stored value", slog.String("key", key), slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

func SaveJSON(ctx context.Context, st Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := st.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
