package cart

import (
	"slices"

	"kynara/internal/domain"
)

// Cart holds unpersisted lines pending checkout, one per product id, in the
// order they were first added. Not safe for concurrent use.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

// Add puts one unit of p in the cart and returns the resulting line.
func (c *Cart) Add(p domain.Product) domain.CartLine {
	if i := c.index(p.ID); i >= 0 {
		c.lines[i].Quantity++
		return c.lines[i]
	}
	line := domain.CartLine{ID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image, Quantity: 1}
	c.lines = append(c.lines, line)
	return line
}

// SetQuantity replaces the quantity of a line. A quantity <= 0 removes it.
// Returns false when no line has that id.
func (c *Cart) SetQuantity(id string, quantity int) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return true
	}
	c.lines[i].Quantity = quantity
	return true
}

func (c *Cart) Remove(id string) bool {
	return c.SetQuantity(id, 0)
}

func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// ItemCount is the sum of quantities, shown on the cart badge.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, l := range c.lines {
		sum += l.Amount()
	}
	return sum
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) index(id string) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.ID == id })
}
