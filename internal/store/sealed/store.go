// Package sealed encrypts values of another store at rest.
package sealed

import (
	"context"
	"fmt"

	"kynara/internal/security/secretbox"
	"kynara/internal/store"
)

type Store struct {
	inner store.Store
	box   *secretbox.Box
}

func Wrap(inner store.Store, box *secretbox.Box) *Store {
	return &Store{inner: inner, box: box}
}

// Get reports values that fail to open as store.ErrCorrupt.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.box.Open(raw, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	return plaintext, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.box.Seal(value, key)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Store) Close() error {
	return s.inner.Close()
}
