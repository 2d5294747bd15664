// Package cart is the client's local shopping cart.
package cart

import (
	"sync"

	"github.com/dukerupert/closeshop/internal/model"
)

type Item struct {
	ProductID  int64
	Title      string
	PriceCents int64
	ImageURL   string
	Qty        int
}

// Cart holds one line per product.
type Cart struct {
	mu    sync.Mutex
	items []Item
}

func New() *Cart {
	return &Cart{}
}

// Add puts qty of p in the cart, merging with an existing line. A
// non-positive qty adds one.
func (c *Cart) Add(p model.Product, qty int) {
	if qty <= 0 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ProductID == p.ID {
			c.items[i].Qty += qty
			return
		}
	}
	c.items = append(c.items, Item{
		ProductID:  p.ID,
		Title:      p.Title,
		PriceCents: p.PriceCents,
		ImageURL:   p.ImageURL,
		Qty:        qty,
	})
}

func (c *Cart) Remove(productID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.items[:0]
	for _, it := range c.items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	c.items = kept
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Reset empties the cart when the session ends.
func (c *Cart) Reset() { c.Clear() }

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Count is the total quantity across lines.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Qty
	}
	return n
}

// Total is the cart value in cents.
func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum int64
	for _, it := range c.items {
		sum += it.PriceCents * int64(it.Qty)
	}
	return sum
}
