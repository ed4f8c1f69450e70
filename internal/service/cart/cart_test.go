package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kynara/internal/domain"
)

var (
	pillow = domain.Product{ID: "1", Name: "Rainbow Tie-Dye Pillow Case", Price: 375000, Image: "a.jpg"}
	body   = domain.Product{ID: "2", Name: "Sunset Tie-Dye Body Pillow", Price: 600000, Image: "b.jpg"}
)

func TestAdd_IncrementsExistingLine(t *testing.T) {
	c := New()
	c.Add(pillow)
	c.Add(body)
	line := c.Add(body)

	assert.Equal(t, 2, line.Quantity)
	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "1", lines[0].ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 2, lines[1].Quantity)
	assert.Equal(t, 3, c.ItemCount())
	assert.Equal(t, int64(375000+2*600000), c.Subtotal())
}

func TestSetQuantity_NonPositiveRemoves(t *testing.T) {
	for _, q := range []int{0, -1} {
		c := New()
		c.Add(pillow)
		c.Add(body)

		require.True(t, c.SetQuantity("1", q))
		lines := c.Lines()
		require.Len(t, lines, 1)
		assert.Equal(t, "2", lines[0].ID)
	}
}

func TestSetQuantity_Updates(t *testing.T) {
	c := New()
	c.Add(pillow)
	require.True(t, c.SetQuantity("1", 4))
	assert.Equal(t, 4, c.Lines()[0].Quantity)
	assert.False(t, c.SetQuantity("missing", 1))
}

func TestLinesAreStrictlyPositive(t *testing.T) {
	c := New()
	c.Add(pillow)
	c.SetQuantity("1", 3)
	c.SetQuantity("1", -5)
	c.Add(body)
	for _, l := range c.Lines() {
		assert.Positive(t, l.Quantity)
	}
}

func TestClearAndEmpty(t *testing.T) {
	c := New()
	assert.True(t, c.Empty())
	c.Add(pillow)
	assert.False(t, c.Empty())
	c.Clear()
	assert.True(t, c.Empty())
	assert.Zero(t, c.Subtotal())
}

func TestLinesReturnsSnapshot(t *testing.T) {
	c := New()
	c.Add(pillow)
	snap := c.Lines()
	c.Add(pillow)
	assert.Equal(t, 1, snap[0].Quantity)
}
