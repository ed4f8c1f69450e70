package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"kynara/internal/domain"
)

const DefaultCapacity = 50

// Feed keeps the most recent toast notifications in memory.
type Feed struct {
	mu       sync.Mutex
	items    []domain.Notification
	capacity int
	now      func() time.Time
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{capacity: capacity, now: time.Now}
}

func (f *Feed) Success(message string) domain.Notification {
	return f.Push(domain.NotificationSuccess, message)
}

func (f *Feed) Error(message string) domain.Notification {
	return f.Push(domain.NotificationError, message)
}

// Push appends a notification, evicting the oldest past capacity.
func (f *Feed) Push(level domain.NotificationLevel, message string) domain.Notification {
	n := domain.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: f.now().UTC(),
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]domain.Notification(nil), f.items[over:]...)
	}
	return n
}

// List returns up to limit notifications, newest first. limit <= 0 means all.
func (f *Feed) List(limit int) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Notification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.items[i])
	}
	return out
}

// Latest returns the newest notification, if any.
func (f *Feed) Latest() (domain.Notification, bool) {
	items := f.List(1)
	if len(items) == 0 {
		return domain.Notification{}, false
	}
	return items[0], true
}
