package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kynara/internal/domain"
	"kynara/internal/store"
	"kynara/internal/store/memory"
)

type task struct {
	after time.Duration
	fn    func()
}

// manualScheduler queues tasks until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []task
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{after: d, fn: fn})
}

// fireUpTo runs, in delay order, every queued task due within d.
func (s *manualScheduler) fireUpTo(d time.Duration) int {
	s.mu.Lock()
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].after < s.tasks[j].after })
	var due, rest []task
	for _, t := range s.tasks {
		if t.after <= d {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.tasks = rest
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (e *eventLog) OrderEvent(ctx context.Context, ev domain.OrderEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

var (
	ana = domain.Session{Name: "Ana", Email: "ana@x.com"}
	bob = domain.Session{Name: "Bob", Email: "bob@x.com"}

	exampleLines = []domain.CartLine{
		{ID: "1", Name: "Rainbow Tie-Dye Pillow Case", Price: 375000, Image: "/img/1.jpg", Quantity: 1},
		{ID: "2", Name: "Sunset Tie-Dye Body Pillow", Price: 600000, Image: "/img/2.jpg", Quantity: 2},
	}
	placedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

type harness struct {
	store     *memory.Store
	scheduler *manualScheduler
	clock     *fixedClock
	events    *eventLog
	ledger    *Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     memory.NewStore(),
		scheduler: &manualScheduler{},
		clock:     &fixedClock{now: placedAt},
		events:    &eventLog{},
	}
	h.ledger = New(h.store, Options{
		ShipAfter:    DefaultShipAfter,
		DeliverAfter: DefaultDeliverAfter,
		Scheduler:    h.scheduler,
		Observer:     h.events,
		Now:          h.clock.Now,
	})
	return h
}

func (h *harness) persisted(t *testing.T, email string) []domain.Order {
	t.Helper()
	orders, err := h.ledger.Persisted(context.Background(), email)
	require.NoError(t, err)
	return orders
}

func TestPlaceOrder_RequiresActiveSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.PlaceOrder(context.Background(), exampleLines, "QRIS", 1732500)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
	assert.Empty(t, h.scheduler.tasks)
}

func TestPlaceOrder_PrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))

	first, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, first.Status)
	assert.Equal(t, int64(1732500), first.Total)
	assert.Equal(t, "QRIS", first.PaymentMethod)
	assert.Equal(t, placedAt, first.Date)
	require.NotNil(t, first.EstimatedDelivery)
	assert.Equal(t, placedAt.Add(7*24*time.Hour), *first.EstimatedDelivery)

	second, err := h.ledger.PlaceOrder(ctx, exampleLines[:1], "Debit Card", 412500)
	require.NoError(t, err)

	orders := h.ledger.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, orders, h.persisted(t, ana.Email))
	assert.Len(t, h.scheduler.tasks, 4)
}

func TestPlaceOrder_IDsIncreaseWithinSameMillisecond(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))

	var last string
	for i := 0; i < 5; i++ {
		o, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1)
		require.NoError(t, err)
		if last != "" {
			assert.True(t, o.ID > last, "id %s should sort after %s", o.ID, last)
		}
		last = o.ID
	}
}

func TestPlaceOrder_IDsSortAfterRestoredLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	old, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1)
	require.NoError(t, err)

	// A fresh process whose clock runs behind the stored ids.
	h.clock.now = placedAt.Add(-time.Hour)
	fresh := New(h.store, Options{Scheduler: h.scheduler, Now: h.clock.Now})
	require.NoError(t, fresh.SessionStarted(ctx, ana))
	next, err := fresh.PlaceOrder(ctx, exampleLines, "QRIS", 1)
	require.NoError(t, err)
	assert.True(t, next.ID > old.ID)
}

func TestFulfillmentTimeline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	order, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)

	assert.Equal(t, 1, h.scheduler.fireUpTo(DefaultShipAfter))
	assert.Equal(t, domain.OrderStatusShipped, h.ledger.Orders()[0].Status)
	assert.Equal(t, domain.OrderStatusShipped, h.persisted(t, ana.Email)[0].Status)
	assert.Equal(t, 1, h.ledger.ActiveCount())

	assert.Equal(t, 1, h.scheduler.fireUpTo(DefaultDeliverAfter))
	assert.Equal(t, domain.OrderStatusDelivered, h.ledger.Orders()[0].Status)
	assert.Equal(t, domain.OrderStatusDelivered, h.persisted(t, ana.Email)[0].Status)
	assert.Zero(t, h.ledger.ActiveCount())

	require.Len(t, h.events.events, 3)
	assert.Equal(t, domain.EventOrderPlaced, h.events.events[0].Type)
	assert.Equal(t, domain.OrderStatusShipped, h.events.events[1].Status)
	assert.Equal(t, domain.OrderStatusProcessing, h.events.events[1].Previous)
	assert.Equal(t, domain.OrderStatusDelivered, h.events.events[2].Status)
	for _, ev := range h.events.events {
		assert.Equal(t, order.ID, ev.OrderID)
		assert.Equal(t, ana.Email, ev.Email)
		assert.NotEmpty(t, ev.ID)
	}
}

func TestAdvanceStatus_OnlyImmediateSuccessor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	order, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1)
	require.NoError(t, err)

	applied, err := h.ledger.AdvanceStatus(ctx, ana.Email, order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.False(t, applied, "processing must not skip to delivered")

	applied, err = h.ledger.AdvanceStatus(ctx, ana.Email, order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = h.ledger.AdvanceStatus(ctx, ana.Email, order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = h.ledger.AdvanceStatus(ctx, ana.Email, order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.False(t, applied, "status must not reverse")
	assert.Equal(t, domain.OrderStatusShipped, h.ledger.Orders()[0].Status)
}

func TestAdvanceStatus_MissingOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applied, err := h.ledger.AdvanceStatus(ctx, ana.Email, "123", domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, applied)
	_, err = h.store.Get(ctx, store.OrdersKey(ana.Email))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTimersFireForOwnerAfterLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	order, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)

	h.ledger.SessionEnded(ctx)
	require.NoError(t, h.ledger.SessionStarted(ctx, bob))
	assert.Empty(t, h.ledger.Orders())

	h.scheduler.fireUpTo(DefaultDeliverAfter)

	assert.Empty(t, h.ledger.Orders(), "bob's ledger must not receive ana's updates")
	assert.Empty(t, h.persisted(t, bob.Email))
	anaOrders := h.persisted(t, ana.Email)
	require.Len(t, anaOrders, 1)
	assert.Equal(t, order.ID, anaOrders[0].ID)
	assert.Equal(t, domain.OrderStatusDelivered, anaOrders[0].Status)

	h.ledger.SessionEnded(ctx)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	assert.Equal(t, domain.OrderStatusDelivered, h.ledger.Orders()[0].Status)
}

func TestLedgersAreIsolatedPerIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	_, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)
	anaBefore := h.persisted(t, ana.Email)

	h.ledger.SessionEnded(ctx)
	require.NoError(t, h.ledger.SessionStarted(ctx, bob))
	_, err = h.ledger.PlaceOrder(ctx, exampleLines[:1], "BCA Virtual Account", 412500)
	require.NoError(t, err)
	require.Len(t, h.ledger.Orders(), 1)

	h.ledger.SessionEnded(ctx)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	assert.Equal(t, anaBefore, h.ledger.Orders())
}

func TestSessionStarted_CorruptLedgerLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Set(ctx, store.OrdersKey(ana.Email), []byte(`[{"id":`)))
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	assert.Empty(t, h.ledger.Orders())

	_, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1)
	require.NoError(t, err)
	assert.Len(t, h.persisted(t, ana.Email), 1)
}

// pausingStore holds the next armed Get of key after reading the value and
// until release is closed.
type pausingStore struct {
	*memory.Store
	key     string
	mu      sync.Mutex
	armed   bool
	paused  chan struct{}
	release chan struct{}
}

func (s *pausingStore) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.paused = make(chan struct{})
	s.release = make(chan struct{})
}

func (s *pausingStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.Store.Get(ctx, key)
	s.mu.Lock()
	hold := s.armed && key == s.key
	if hold {
		s.armed = false
	}
	paused, release := s.paused, s.release
	s.mu.Unlock()
	if hold {
		close(paused)
		<-release
	}
	return raw, err
}

func TestSessionStarted_TransitionDuringLoadIsNotLost(t *testing.T) {
	ctx := context.Background()
	st := &pausingStore{Store: memory.NewStore(), key: store.OrdersKey(ana.Email)}
	scheduler := &manualScheduler{}
	l := New(st, Options{Scheduler: scheduler, Now: (&fixedClock{now: placedAt}).Now})

	require.NoError(t, l.SessionStarted(ctx, ana))
	order, err := l.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)
	l.SessionEnded(ctx)

	st.arm()
	loaded := make(chan error, 1)
	go func() { loaded <- l.SessionStarted(ctx, ana) }()
	<-st.paused

	shipped := make(chan struct{})
	go func() {
		scheduler.fireUpTo(DefaultShipAfter)
		close(shipped)
	}()
	time.Sleep(20 * time.Millisecond)
	close(st.release)
	require.NoError(t, <-loaded)
	<-shipped

	scheduler.fireUpTo(DefaultDeliverAfter)
	require.Len(t, l.Orders(), 1)
	assert.Equal(t, domain.OrderStatusDelivered, l.Orders()[0].Status)

	_, err = l.PlaceOrder(ctx, exampleLines[:1], "QRIS", 412500)
	require.NoError(t, err)
	persisted, err := l.Persisted(ctx, ana.Email)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, order.ID, persisted[1].ID)
	assert.Equal(t, domain.OrderStatusDelivered, persisted[1].Status)
}

func TestStatusIsMonotonicUnderRandomFiring(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	for i := 0; i < 3; i++ {
		_, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1)
		require.NoError(t, err)
	}
	statuses := []domain.OrderStatus{
		domain.OrderStatusDelivered, domain.OrderStatusShipped, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusShipped,
	}
	rank := map[domain.OrderStatus]int{
		domain.OrderStatusProcessing: 0,
		domain.OrderStatusShipped:    1,
		domain.OrderStatusDelivered:  2,
	}
	prev := map[string]int{}
	for _, next := range statuses {
		for _, o := range h.ledger.Orders() {
			_, err := h.ledger.AdvanceStatus(ctx, ana.Email, o.ID, next)
			require.NoError(t, err)
		}
		for _, o := range h.ledger.Orders() {
			r := rank[o.Status]
			assert.GreaterOrEqual(t, r, prev[o.ID])
			assert.LessOrEqual(t, r-prev[o.ID], 1)
			prev[o.ID] = r
		}
	}
}

func TestNew_FallsBackWhenTimelineUnordered(t *testing.T) {
	l := New(memory.NewStore(), Options{ShipAfter: 10 * time.Second, DeliverAfter: 3 * time.Second})
	assert.Equal(t, DefaultShipAfter, l.shipAfter)
	assert.Equal(t, DefaultDeliverAfter, l.deliverAfter)
}

func TestPersistedWireFormat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.ledger.SessionStarted(ctx, ana))
	_, err := h.ledger.PlaceOrder(ctx, exampleLines, "QRIS", 1732500)
	require.NoError(t, err)

	raw, err := h.store.Get(ctx, store.OrdersKey(ana.Email))
	require.NoError(t, err)
	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, raw, "", "  "))
	pretty.WriteByte('\n')

	g := goldie.New(t)
	g.Assert(t, "ledger_persisted", pretty.Bytes())
}
