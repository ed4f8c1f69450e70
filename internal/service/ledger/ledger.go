package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"kynara/internal/domain"
	"kynara/internal/store"
)

const (
	DefaultShipAfter        = 5 * time.Second
	DefaultDeliverAfter     = 10 * time.Second
	DefaultDeliveryEstimate = 7 * 24 * time.Hour

	deferredWriteTimeout = 5 * time.Second
)

// Observer receives every order placement and status change.
type Observer interface {
	OrderEvent(ctx context.Context, ev domain.OrderEvent)
}

type ObserverFunc func(ctx context.Context, ev domain.OrderEvent)

func (f ObserverFunc) OrderEvent(ctx context.Context, ev domain.OrderEvent) { f(ctx, ev) }

type Options struct {
	ShipAfter        time.Duration
	DeliverAfter     time.Duration
	DeliveryEstimate time.Duration
	Scheduler        Scheduler
	Observer         Observer
	Logger           *slog.Logger
	Now              func() time.Time
}

// Ledger keeps the active owner's orders in memory, newest first, and writes
// the whole ledger under store.OrdersKey(owner) on every change.
type Ledger struct {
	mu     sync.Mutex
	store  store.Store
	owner  string
	orders []domain.Order
	lastID int64

	shipAfter        time.Duration
	deliverAfter     time.Duration
	deliveryEstimate time.Duration
	scheduler        Scheduler
	observer         Observer
	logger           *slog.Logger
	now              func() time.Time
}

func New(st store.Store, opts Options) *Ledger {
	l := &Ledger{
		store:            st,
		shipAfter:        opts.ShipAfter,
		deliverAfter:     opts.DeliverAfter,
		deliveryEstimate: opts.DeliveryEstimate,
		scheduler:        opts.Scheduler,
		observer:         opts.Observer,
		logger:           opts.Logger,
		now:              opts.Now,
	}
	if l.shipAfter <= 0 {
		l.shipAfter = DefaultShipAfter
	}
	if l.deliverAfter <= l.shipAfter {
		l.shipAfter, l.deliverAfter = DefaultShipAfter, DefaultDeliverAfter
	}
	if l.deliveryEstimate <= 0 {
		l.deliveryEstimate = DefaultDeliveryEstimate
	}
	if l.scheduler == nil {
		l.scheduler = NewTimerScheduler()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// SessionStarted loads the owner's persisted ledger. A missing or unreadable
// ledger starts empty. Loading holds l.mu so a transition firing meanwhile
// applies to the installed ledger, not to a copy about to be replaced.
func (l *Ledger) SessionStarted(ctx context.Context, s domain.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	orders, err := l.load(ctx, s.Email)
	if err != nil {
		return err
	}
	l.owner = s.Email
	l.orders = orders
	for _, o := range orders {
		if n, err := strconv.ParseInt(o.ID, 10, 64); err == nil && n > l.lastID {
			l.lastID = n
		}
	}
	return nil
}

// SessionEnded drops the in-memory ledger. The persisted copy is kept.
func (l *Ledger) SessionEnded(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = ""
	l.orders = nil
}

// PlaceOrder records a processing order for the active owner and schedules
// its fulfillment timeline.
func (l *Ledger) PlaceOrder(ctx context.Context, lines []domain.CartLine, paymentMethod string, total int64) (domain.Order, error) {
	l.mu.Lock()
	if l.owner == "" {
		l.mu.Unlock()
		return domain.Order{}, domain.ErrNoActiveSession
	}
	if len(lines) == 0 {
		l.mu.Unlock()
		return domain.Order{}, domain.ErrEmptyCartCheckout
	}

	now := l.now().UTC()
	estimated := now.Add(l.deliveryEstimate)
	order := domain.Order{
		ID:                l.nextID(now),
		Date:              now,
		Items:             slices.Clone(lines),
		Total:             total,
		Status:            domain.OrderStatusProcessing,
		PaymentMethod:     paymentMethod,
		EstimatedDelivery: &estimated,
	}
	owner := l.owner
	updated := append([]domain.Order{order}, l.orders...)
	if err := store.SaveJSON(ctx, l.store, store.OrdersKey(owner), updated); err != nil {
		l.mu.Unlock()
		return domain.Order{}, fmt.Errorf("persist ledger for %s: %w", owner, err)
	}
	l.orders = updated

	l.schedule(owner, order.ID, l.shipAfter, domain.OrderStatusShipped)
	l.schedule(owner, order.ID, l.deliverAfter, domain.OrderStatusDelivered)
	l.mu.Unlock()

	l.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("email", owner),
		slog.Int64("total", order.Total),
		slog.String("payment_method", paymentMethod),
	)
	l.emit(ctx, domain.OrderEvent{
		Type:    domain.EventOrderPlaced,
		Email:   owner,
		OrderID: order.ID,
		Status:  order.Status,
		Total:   order.Total,
	})
	return order, nil
}

// AdvanceStatus moves an order of email's ledger to next when next is the
// immediate successor of its current status. Missing orders and any other
// transition are skipped without error. It reports whether the status changed.
func (l *Ledger) AdvanceStatus(ctx context.Context, email, orderID string, next domain.OrderStatus) (bool, error) {
	l.mu.Lock()

	inMemory := email != "" && email == l.owner
	var orders []domain.Order
	if inMemory {
		orders = slices.Clone(l.orders)
	} else {
		loaded, err := l.load(ctx, email)
		if err != nil {
			l.mu.Unlock()
			return false, err
		}
		orders = loaded
	}

	i := slices.IndexFunc(orders, func(o domain.Order) bool { return o.ID == orderID })
	if i < 0 {
		l.mu.Unlock()
		return false, nil
	}
	previous := orders[i].Status
	if want, ok := previous.Next(); !ok || want != next {
		l.mu.Unlock()
		return false, nil
	}
	orders[i].Status = next
	if err := store.SaveJSON(ctx, l.store, store.OrdersKey(email), orders); err != nil {
		l.mu.Unlock()
		return false, fmt.Errorf("persist ledger for %s: %w", email, err)
	}
	if inMemory {
		l.orders = orders
	}
	total := orders[i].Total
	l.mu.Unlock()

	l.emit(ctx, domain.OrderEvent{
		Type:     domain.EventOrderStatusChanged,
		Email:    email,
		OrderID:  orderID,
		Status:   next,
		Previous: previous,
		Total:    total,
	})
	return true, nil
}

// Orders returns the active owner's ledger, newest first.
func (l *Ledger) Orders() []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.orders)
}

// ActiveCount counts orders still processing or shipped.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.orders {
		if o.Status.Active() {
			n++
		}
	}
	return n
}

func (l *Ledger) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Persisted reads email's ledger straight from storage.
func (l *Ledger) Persisted(ctx context.Context, email string) ([]domain.Order, error) {
	return l.load(ctx, email)
}

func (l *Ledger) schedule(owner, orderID string, after time.Duration, next domain.OrderStatus) {
	l.scheduler.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), deferredWriteTimeout)
		defer cancel()

		applied, err := l.AdvanceStatus(ctx, owner, orderID, next)
		attrs := []any{
			slog.String("order_id", orderID),
			slog.String("email", owner),
			slog.String("status", string(next)),
		}
		switch {
		case err != nil:
			l.logger.Error("fulfillment transition failed", append(attrs, slog.String("error", err.Error()))...)
		case applied:
			l.logger.Info("fulfillment transition applied", attrs...)
		default:
			l.logger.Warn("fulfillment transition skipped", attrs...)
		}
	})
}

// nextID encodes creation time in milliseconds, bumped past the last issued
// id so later orders always sort after earlier ones.
func (l *Ledger) nextID(now time.Time) string {
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return strconv.FormatInt(id, 10)
}

func (l *Ledger) load(ctx context.Context, email string) ([]domain.Order, error) {
	var orders []domain.Order
	found, err := store.LoadJSON(ctx, l.store, store.OrdersKey(email), &orders)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", email, err)
	}
	if !found {
		return nil, nil
	}
	return orders, nil
}

func (l *Ledger) emit(ctx context.Context, ev domain.OrderEvent) {
	if l.observer == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.OccurredAt = l.now().UTC()
	l.observer.OrderEvent(ctx, ev)
}
