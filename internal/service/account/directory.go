package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kynara/internal/domain"
	"kynara/internal/store"
)

// Directory is the registry of identities persisted under
// store.KeyIdentities. Emails are unique.
type Directory struct {
	mu     sync.Mutex
	store  store.Store
	logger *slog.Logger
}

func NewDirectory(st store.Store, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: st, logger: logger}
}

// Register appends a new identity. The directory is left untouched when the
// email is already taken.
func (d *Directory) Register(ctx context.Context, name, email, password string) (domain.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return domain.Identity{}, domain.ErrMissingFields
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	identities, err := d.load(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	for _, existing := range identities {
		if existing.Email == email {
			return domain.Identity{}, domain.ErrDuplicateEmail
		}
	}

	identity := domain.Identity{Name: name, Email: email, Password: password}
	identities = append(identities, identity)
	if err := store.SaveJSON(ctx, d.store, store.KeyIdentities, identities); err != nil {
		return domain.Identity{}, fmt.Errorf("save identities: %w", err)
	}
	d.logger.Info("identity registered", slog.String("email", email))
	return identity, nil
}

// Authenticate returns the identity with exactly this email and password.
// Unknown emails and wrong passwords fail the same way.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)

	d.mu.Lock()
	defer d.mu.Unlock()

	identities, err := d.load(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	for _, identity := range identities {
		if identity.Email == email && identity.Password == password {
			return identity, nil
		}
	}
	return domain.Identity{}, domain.ErrInvalidCredentials
}

func (d *Directory) Count(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	identities, err := d.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(identities), nil
}

func (d *Directory) load(ctx context.Context) ([]domain.Identity, error) {
	var identities []domain.Identity
	found, err := store.LoadJSON(ctx, d.store, store.KeyIdentities, &identities)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	if !found {
		return nil, nil
	}
	return identities, nil
}
