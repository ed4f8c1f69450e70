package navigation

import (
	"fmt"
	"sync"

	"kynara/internal/domain"
)

// transitions lists the allowed moves. Pages marked in authenticated are only
// reachable while a session exists.
var transitions = map[domain.Page][]domain.Page{
	domain.PageLogin:    {domain.PageSignup, domain.PageShop},
	domain.PageSignup:   {domain.PageLogin, domain.PageShop},
	domain.PageShop:     {domain.PageCheckout, domain.PageOrders, domain.PageLogin},
	domain.PageCheckout: {domain.PageShop},
	domain.PageOrders:   {domain.PageShop},
}

var authenticated = map[domain.Page]bool{
	domain.PageShop:     true,
	domain.PageCheckout: true,
	domain.PageOrders:   true,
}

// Controller tracks the active page.
type Controller struct {
	mu      sync.RWMutex
	current domain.Page
}

// New starts on the shop when a session was restored, otherwise on login.
func New(restored bool) *Controller {
	if restored {
		return &Controller{current: domain.PageShop}
	}
	return &Controller{current: domain.PageLogin}
}

func (c *Controller) Current() domain.Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Go moves to next. sessionActive guards the pages that need a session.
func (c *Controller) Go(next domain.Page, sessionActive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !Allowed(c.current, next, sessionActive) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.current, next)
	}
	c.current = next
	return nil
}

// Reset forces the controller back to login, used when the session is gone.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = domain.PageLogin
}

// Available lists the pages reachable from the current one.
func (c *Controller) Available(sessionActive bool) []domain.Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Page
	for _, p := range transitions[c.current] {
		if Allowed(c.current, p, sessionActive) {
			out = append(out, p)
		}
	}
	return out
}

func Allowed(from, to domain.Page, sessionActive bool) bool {
	if authenticated[to] && !sessionActive {
		return false
	}
	// Leaving the shop for login is a logout; the session must already be gone.
	if from == domain.PageShop && to == domain.PageLogin && sessionActive {
		return false
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
