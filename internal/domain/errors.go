package domain

import "errors"

var (
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrNoActiveSession      = errors.New("no active session")
	ErrEmptyCartCheckout    = errors.New("your cart is empty")
	ErrInvalidTransition    = errors.New("invalid page transition")
	ErrMissingFields        = errors.New("name, email and password are required")
	ErrUnknownProduct       = errors.New("unknown product")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
)
