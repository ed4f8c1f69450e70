package checkout

import "kynara/internal/domain"

const basisPointsDenominator = 10000

type Summary struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Summarize prices lines with tax at taxBasisPoints (1000 = 10%), rounded
// half-up to whole currency units.
func Summarize(lines []domain.CartLine, taxBasisPoints int64) Summary {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.Amount()
	}
	tax := (subtotal*taxBasisPoints + basisPointsDenominator/2) / basisPointsDenominator
	if tax < 0 {
		tax = 0
	}
	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}
