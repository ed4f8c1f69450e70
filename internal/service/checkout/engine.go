package checkout

import (
	"fmt"
	"strings"

	"kynara/internal/domain"
)

type PaymentMethod string

const (
	PaymentDebit   PaymentMethod = "debit"
	PaymentQRIS    PaymentMethod = "qris"
	PaymentBCA     PaymentMethod = "bca"
	PaymentMandiri PaymentMethod = "mandiri"
)

var paymentMethodNames = map[PaymentMethod]string{
	PaymentDebit:   "Debit Card",
	PaymentQRIS:    "QRIS",
	PaymentBCA:     "BCA Virtual Account",
	PaymentMandiri: "MANDIRI Virtual Account",
}

// DisplayName is the string stored on the order for a payment method code.
func DisplayName(code string) (string, error) {
	name, ok := paymentMethodNames[PaymentMethod(strings.ToLower(strings.TrimSpace(code)))]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPaymentMethod, code)
	}
	return name, nil
}

type Quote struct {
	Lines         []domain.CartLine `json:"items"`
	Summary       Summary           `json:"summary"`
	PaymentMethod string            `json:"payment_method"`
}

type Engine struct {
	taxBasisPoints int64
}

func NewEngine(taxBasisPoints int64) *Engine {
	return &Engine{taxBasisPoints: taxBasisPoints}
}

func (e *Engine) Summarize(lines []domain.CartLine) Summary {
	return Summarize(lines, e.taxBasisPoints)
}

// Quote validates a checkout snapshot and prices it for the given payment code.
func (e *Engine) Quote(lines []domain.CartLine, paymentCode string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, domain.ErrEmptyCartCheckout
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Quote{}, fmt.Errorf("line %s has non-positive quantity %d", l.ID, l.Quantity)
		}
	}
	name, err := DisplayName(paymentCode)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Lines:         lines,
		Summary:       e.Summarize(lines),
		PaymentMethod: name,
	}, nil
}
