package domain

import "time"

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// Next returns the only status an order may move to from s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusProcessing:
		return OrderStatusShipped, true
	case OrderStatusShipped:
		return OrderStatusDelivered, true
	default:
		return "", false
	}
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// Active reports whether the order is still moving through fulfillment.
func (s OrderStatus) Active() bool {
	return s == OrderStatusProcessing || s == OrderStatusShipped
}

type Page string

const (
	PageLogin    Page = "login"
	PageSignup   Page = "signup"
	PageShop     Page = "shop"
	PageCheckout Page = "checkout"
	PageOrders   Page = "orders"
)

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

type OrderEventType string

const (
	EventOrderPlaced        OrderEventType = "order.placed"
	EventOrderStatusChanged OrderEventType = "order.status_changed"
)

// Identity is a registered account. Passwords are stored as entered.
type Identity struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session returns the password-less projection of the identity.
func (i Identity) Session() Session {
	return Session{Name: i.Name, Email: i.Email}
}

type Session struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Product struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Price       int64  `json:"price" yaml:"price"`
	Image       string `json:"image" yaml:"image"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type CartLine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
}

// Amount is price times quantity.
func (l CartLine) Amount() int64 {
	return l.Price * int64(l.Quantity)
}

type Order struct {
	ID                string      `json:"id"`
	Date              time.Time   `json:"date"`
	Items             []CartLine  `json:"items"`
	Total             int64       `json:"total"`
	Status            OrderStatus `json:"status"`
	PaymentMethod     string      `json:"paymentMethod"`
	EstimatedDelivery *time.Time  `json:"estimatedDelivery,omitempty"`
}

type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

type OrderEvent struct {
	ID         string         `json:"event_id"`
	Type       OrderEventType `json:"event_type"`
	Email      string         `json:"email"`
	OrderID    string         `json:"order_id"`
	Status     OrderStatus    `json:"status"`
	Previous   OrderStatus    `json:"previous_status,omitempty"`
	Total      int64          `json:"total"`
	OccurredAt time.Time      `json:"occurred_at"`
}
