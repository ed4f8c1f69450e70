package ledger

import (
	"sync"
	"time"
)

// Scheduler runs deferred work. Nothing it holds survives a restart.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler backs Scheduler with time.AfterFunc and can drop every
// pending task on shutdown.
type TimerScheduler struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*time.Timer
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{pending: make(map[uint64]*time.Timer)}
}

func (s *TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Pending is the number of tasks that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels all pending tasks and rejects new ones. It returns how many
// were dropped.
func (s *TimerScheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	dropped := 0
	for id, t := range s.pending {
		if t.Stop() {
			dropped++
		}
		delete(s.pending, id)
	}
	return dropped
}
