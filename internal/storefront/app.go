package storefront

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"kynara/internal/catalog"
	"kynara/internal/domain"
	"kynara/internal/metrics"
	"kynara/internal/notify"
	"kynara/internal/service/account"
	"kynara/internal/service/cart"
	"kynara/internal/service/checkout"
	"kynara/internal/service/ledger"
	"kynara/internal/service/navigation"
	"kynara/internal/service/session"
	"kynara/internal/store"
)

const (
	msgAddedToCart     = "Added to cart"
	msgRemovedFromCart = "Removed from cart"
	msgCartEmpty       = "Your cart is empty"
	msgLoggedOut       = "Logged out successfully"
	msgOrderPlaced     = "Payment successful! Order placed."
	msgInvalidLogin    = "Invalid email or password"
	msgDuplicateEmail  = "Email already registered"
	msgMissingFields   = "Please fill in all fields"
	msgNoSession       = "Please log in first"
	msgUnknownProduct  = "Product not found"
	msgUnknownPayment  = "Please choose a payment method"
	msgUnavailableStep = "That page is not available right now"
)

type Options struct {
	Store            store.Store
	Catalog          *catalog.Catalog
	TaxBasisPoints   int64
	ShipAfter        time.Duration
	DeliverAfter     time.Duration
	DeliveryEstimate time.Duration
	PaymentDelay     time.Duration
	Scheduler        ledger.Scheduler
	Observer         ledger.Observer
	Metrics          metrics.Recorder
	Feed             *notify.Feed
	Logger           *slog.Logger
	Now              func() time.Time
}

// App is the storefront controller. Every user action runs under one lock,
// in the order session, ledger. Pay releases it while the payment is
// processing.
type App struct {
	mu sync.Mutex

	catalog   *catalog.Catalog
	directory *account.Directory
	sessions  *session.Store
	ledger    *ledger.Ledger
	nav       *navigation.Controller
	cart      *cart.Cart
	checkout  *checkout.Engine
	feed      *notify.Feed
	metrics   metrics.Recorder
	logger    *slog.Logger

	paymentDelay time.Duration
	pending      []domain.CartLine
	// checkoutSeq changes whenever pending does, so a payment can tell that
	// its checkout was abandoned while it waited.
	checkoutSeq uint64
	paying      bool
}

type payment struct {
	seq   uint64
	email string
	quote checkout.Quote
}

func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("storefront: store is required")
	}
	if opts.Catalog == nil {
		c, err := catalog.Load("")
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Feed == nil {
		opts.Feed = notify.NewFeed(notify.DefaultCapacity)
	}
	if opts.Observer == nil {
		opts.Observer = opts.Metrics
	}

	l := ledger.New(opts.Store, ledger.Options{
		ShipAfter:        opts.ShipAfter,
		DeliverAfter:     opts.DeliverAfter,
		DeliveryEstimate: opts.DeliveryEstimate,
		Scheduler:        opts.Scheduler,
		Observer:         opts.Observer,
		Logger:           opts.Logger.With(slog.String("component", "ledger")),
		Now:              opts.Now,
	})
	return &App{
		catalog:      opts.Catalog,
		directory:    account.NewDirectory(opts.Store, opts.Logger.With(slog.String("component", "account"))),
		sessions:     session.NewStore(opts.Store, opts.Logger.With(slog.String("component", "session")), l),
		ledger:       l,
		nav:          navigation.New(false),
		cart:         cart.New(),
		checkout:     checkout.NewEngine(opts.TaxBasisPoints),
		feed:         opts.Feed,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		paymentDelay: opts.PaymentDelay,
	}, nil
}

// Boot restores a persisted session. On success the app opens on the shop.
func (a *App) Boot(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, restored, err := a.sessions.Restore(ctx)
	if err != nil {
		return false, err
	}
	if restored {
		if err := a.nav.Go(domain.PageShop, true); err != nil {
			return false, err
		}
	}
	return restored, nil
}

func (a *App) Signup(ctx context.Context, name, email, password string) (domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuthPage(); err != nil {
		return domain.Session{}, a.fail(err)
	}
	identity, err := a.directory.Register(ctx, name, email, password)
	a.metrics.RecordAuth("signup", err == nil)
	if err != nil {
		return domain.Session{}, a.fail(err)
	}
	sess, err := a.enter(ctx, identity)
	if err != nil {
		return domain.Session{}, a.fail(err)
	}
	a.feed.Success(fmt.Sprintf("Welcome to Kynara, %s!", sess.Name))
	return sess, nil
}

func (a *App) Login(ctx context.Context, email, password string) (domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuthPage(); err != nil {
		return domain.Session{}, a.fail(err)
	}
	identity, err := a.directory.Authenticate(ctx, email, password)
	a.metrics.RecordAuth("login", err == nil)
	if err != nil {
		return domain.Session{}, a.fail(err)
	}
	sess, err := a.enter(ctx, identity)
	if err != nil {
		return domain.Session{}, a.fail(err)
	}
	a.feed.Success(fmt.Sprintf("Welcome back, %s!", sess.Name))
	return sess, nil
}

// Logout ends the session from the shop. Orders stay persisted.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.sessions.Active() {
		return a.fail(domain.ErrNoActiveSession)
	}
	if a.nav.Current() != domain.PageShop {
		return a.fail(fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, a.nav.Current(), domain.PageLogin))
	}
	if err := a.sessions.End(ctx); err != nil {
		return a.fail(err)
	}
	a.cart.Clear()
	a.setPending(nil)
	if err := a.nav.Go(domain.PageLogin, false); err != nil {
		a.nav.Reset()
	}
	a.feed.Success(msgLoggedOut)
	return nil
}

func (a *App) ShowSignup() error {
	return a.navigate(domain.PageSignup)
}

func (a *App) ShowLogin() error {
	return a.navigate(domain.PageLogin)
}

func (a *App) ShowOrders() error {
	return a.navigate(domain.PageOrders)
}

// BackToShop returns from orders or abandons checkout. The cart is kept.
func (a *App) BackToShop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.nav.Go(domain.PageShop, a.sessions.Active()); err != nil {
		return a.fail(err)
	}
	a.setPending(nil)
	return nil
}

func (a *App) AddToCart(productID string) (domain.CartLine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireShop(); err != nil {
		return domain.CartLine{}, a.fail(err)
	}
	product, err := a.catalog.Find(productID)
	if err != nil {
		return domain.CartLine{}, a.fail(err)
	}
	line := a.cart.Add(product)
	a.feed.Success(msgAddedToCart)
	return line, nil
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (a *App) UpdateQuantity(productID string, quantity int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireShop(); err != nil {
		return a.fail(err)
	}
	if !a.cart.SetQuantity(productID, quantity) {
		return a.fail(fmt.Errorf("%w: %s not in cart", domain.ErrUnknownProduct, productID))
	}
	if quantity <= 0 {
		a.feed.Success(msgRemovedFromCart)
	}
	return nil
}

func (a *App) RemoveFromCart(productID string) error {
	return a.UpdateQuantity(productID, 0)
}

// BeginCheckout freezes the cart lines and moves to checkout. An empty cart
// keeps the shop open.
func (a *App) BeginCheckout() (checkout.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireShop(); err != nil {
		return checkout.Summary{}, a.fail(err)
	}
	if a.cart.Empty() {
		a.metrics.RecordCheckoutRejected("empty_cart")
		return checkout.Summary{}, a.fail(domain.ErrEmptyCartCheckout)
	}
	if err := a.nav.Go(domain.PageCheckout, true); err != nil {
		return checkout.Summary{}, a.fail(err)
	}
	a.setPending(a.cart.Lines())
	return a.checkout.Summarize(a.pending), nil
}

// Pay simulates the payment for the frozen checkout lines and places the
// order. Other actions proceed while the payment is processing; if the
// checkout is left or the session changes meanwhile, no order is placed. The
// payment wait honours ctx.
func (a *App) Pay(ctx context.Context, paymentCode string) (domain.Order, error) {
	p, err := a.startPayment(paymentCode)
	if err != nil {
		return domain.Order{}, err
	}
	waitErr := a.awaitPayment(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.paying = false
	if waitErr != nil {
		return domain.Order{}, waitErr
	}
	sess, active := a.sessions.Current()
	if !active || sess.Email != p.email || a.checkoutSeq != p.seq || a.nav.Current() != domain.PageCheckout {
		return domain.Order{}, a.fail(fmt.Errorf("%w: checkout changed during payment", domain.ErrInvalidTransition))
	}

	order, err := a.ledger.PlaceOrder(ctx, p.quote.Lines, p.quote.PaymentMethod, p.quote.Summary.Total)
	if err != nil {
		return domain.Order{}, a.fail(err)
	}
	a.cart.Clear()
	a.setPending(nil)
	if err := a.nav.Go(domain.PageShop, true); err != nil {
		return order, err
	}
	a.feed.Success(msgOrderPlaced)
	return order, nil
}

func (a *App) startPayment(paymentCode string) (payment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, active := a.sessions.Current()
	if a.nav.Current() != domain.PageCheckout || !active {
		return payment{}, a.fail(fmt.Errorf("%w: payment outside checkout", domain.ErrInvalidTransition))
	}
	if a.paying {
		return payment{}, a.fail(fmt.Errorf("%w: payment already processing", domain.ErrInvalidTransition))
	}
	quote, err := a.checkout.Quote(a.pending, paymentCode)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPaymentMethod) {
			a.metrics.RecordCheckoutRejected("payment_method")
		}
		return payment{}, a.fail(err)
	}
	a.paying = true
	return payment{seq: a.checkoutSeq, email: sess.Email, quote: quote}, nil
}

func (a *App) awaitPayment(ctx context.Context) error {
	if a.paymentDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.paymentDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Orders lists the active identity's orders, newest first.
func (a *App) Orders() []domain.Order {
	orders := a.ledger.Orders()
	slices.SortStableFunc(orders, func(x, y domain.Order) int {
		if c := y.Date.Compare(x.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(len(y.ID), len(x.ID)); c != 0 {
			return c
		}
		return cmp.Compare(y.ID, x.ID)
	})
	return orders
}

func (a *App) Products() []domain.Product {
	return a.catalog.Products()
}

func (a *App) Notifications(limit int) []domain.Notification {
	return a.feed.List(limit)
}

func (a *App) CurrentSession() (domain.Session, bool) {
	return a.sessions.Current()
}

// State is everything a presentation layer needs to render the current page.
type State struct {
	Page         domain.Page       `json:"page"`
	Session      *domain.Session   `json:"session,omitempty"`
	Available    []domain.Page     `json:"available"`
	Cart         []domain.CartLine `json:"cart"`
	CartCount    int               `json:"cart_count"`
	CartSummary  checkout.Summary  `json:"cart_summary"`
	Checkout     *CheckoutView     `json:"checkout,omitempty"`
	ActiveOrders int               `json:"active_orders"`
}

type CheckoutView struct {
	Items   []domain.CartLine `json:"items"`
	Summary checkout.Summary  `json:"summary"`
	Paying  bool              `json:"paying"`
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, active := a.sessions.Current()
	st := State{
		Page:         a.nav.Current(),
		Available:    a.nav.Available(active),
		Cart:         a.cart.Lines(),
		CartCount:    a.cart.ItemCount(),
		CartSummary:  a.checkout.Summarize(a.cart.Lines()),
		ActiveOrders: a.ledger.ActiveCount(),
	}
	if active {
		st.Session = &sess
	}
	if st.Page == domain.PageCheckout {
		st.Checkout = &CheckoutView{
			Items:   slices.Clone(a.pending),
			Summary: a.checkout.Summarize(a.pending),
			Paying:  a.paying,
		}
	}
	return st
}

func (a *App) enter(ctx context.Context, identity domain.Identity) (domain.Session, error) {
	sess, err := a.sessions.Start(ctx, identity)
	if err != nil {
		return domain.Session{}, err
	}
	a.cart.Clear()
	a.setPending(nil)
	if err := a.nav.Go(domain.PageShop, true); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func (a *App) setPending(lines []domain.CartLine) {
	a.pending = lines
	a.checkoutSeq++
}

func (a *App) navigate(to domain.Page) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.nav.Go(to, a.sessions.Active()); err != nil {
		return a.fail(err)
	}
	return nil
}

func (a *App) requireAuthPage() error {
	switch page := a.nav.Current(); page {
	case domain.PageLogin, domain.PageSignup:
		return nil
	default:
		return fmt.Errorf("%w: already signed in on %s", domain.ErrInvalidTransition, page)
	}
}

func (a *App) requireShop() error {
	if !a.sessions.Active() {
		return domain.ErrNoActiveSession
	}
	if page := a.nav.Current(); page != domain.PageShop {
		return fmt.Errorf("%w: cart is only editable from the shop, not %s", domain.ErrInvalidTransition, page)
	}
	return nil
}

// fail surfaces err as an error toast and returns it unchanged.
func (a *App) fail(err error) error {
	a.feed.Error(Message(err))
	a.logger.Debug("action rejected", slog.String("error", err.Error()))
	return err
}

// Message is the user-facing text for an action error.
func Message(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return msgInvalidLogin
	case errors.Is(err, domain.ErrDuplicateEmail):
		return msgDuplicateEmail
	case errors.Is(err, domain.ErrEmptyCartCheckout):
		return msgCartEmpty
	case errors.Is(err, domain.ErrMissingFields):
		return msgMissingFields
	case errors.Is(err, domain.ErrNoActiveSession):
		return msgNoSession
	case errors.Is(err, domain.ErrUnknownProduct):
		return msgUnknownProduct
	case errors.Is(err, domain.ErrUnknownPaymentMethod):
		return msgUnknownPayment
	case errors.Is(err, domain.ErrInvalidTransition):
		return msgUnavailableStep
	default:
		return err.Error()
	}
}
