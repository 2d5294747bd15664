package cart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/closeshop/internal/model"
)

var (
	rye   = model.Product{ID: 1, Title: "Rye", PriceCents: 450}
	bagel = model.Product{ID: 2, Title: "Bagel", PriceCents: 125}
)

func TestAddMergesLines(t *testing.T) {
	c := New()
	c.Add(rye, 1)
	c.Add(bagel, 0)
	c.Add(rye, 2)

	items := c.Items()
	require.Len(t, items, 2)
	require.Equal(t, int64(1), items[0].ProductID)
	require.Equal(t, 3, items[0].Qty)
	require.Equal(t, 1, items[1].Qty)
	require.Equal(t, 4, c.Count())
	require.Equal(t, int64(3*450+125), c.Total())
}

func TestRemove(t *testing.T) {
	c := New()
	c.Add(rye, 1)
	c.Add(bagel, 3)

	c.Remove(rye.ID)
	require.Equal(t, 3, c.Count())
	require.Equal(t, int64(375), c.Total())

	c.Remove(42)
	require.Len(t, c.Items(), 1)
}

func TestClearAndReset(t *testing.T) {
	c := New()
	c.Add(rye, 2)
	c.Clear()
	require.Zero(t, c.Count())
	require.Zero(t, c.Total())

	c.Add(bagel, 1)
	c.Reset()
	require.Empty(t, c.Items())
}
