package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kynara/internal/domain"
	"kynara/internal/metrics"
)

const publishTimeout = 30 * time.Second

// Publisher delivers order events to an outside system.
type Publisher interface {
	Publish(ctx context.Context, ev domain.OrderEvent) error
}

type Sink struct {
	Name      string
	Publisher Publisher
}

// Dispatcher records every order event and hands it to the sinks on a
// background worker so slow endpoints never hold up the ledger.
type Dispatcher struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	sinks    []Sink

	mu     sync.RWMutex
	closed bool
	queue  chan domain.OrderEvent
	done   chan struct{}
}

func NewDispatcher(logger *slog.Logger, recorder metrics.Recorder, buffer int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		logger:   logger,
		recorder: recorder,
		sinks:    sinks,
		queue:    make(chan domain.OrderEvent, buffer),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) OrderEvent(ctx context.Context, ev domain.OrderEvent) {
	d.recorder.OrderEvent(ctx, ev)
	if len(d.sinks) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("order event dropped, queue full",
			slog.String("event_id", ev.ID),
			slog.String("order_id", ev.OrderID),
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := sink.Publisher.Publish(ctx, ev)
			cancel()
			d.recorder.RecordEventDelivery(sink.Name, err == nil)
			if err != nil {
				d.logger.Error("order event delivery failed",
					slog.String("sink", sink.Name),
					slog.String("event_id", ev.ID),
					slog.String("order_id", ev.OrderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
