package models

import "sort"

// MaxLineQuantity caps the units of one menu item per order.
const MaxLineQuantity = 20

// CartLine is one menu item and its quantity.
type CartLine struct {
	MenuItemID string `json:"menu_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"max=20"`
}

// Cart is a client-side basket of menu items. It is never persisted and
// quantities are always positive; a line reaching zero is removed.
type Cart struct {
	lines map[string]int
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{lines: make(map[string]int)}
}

// CartFromLines builds a cart, merging duplicate ids and ignoring
// non-positive quantities.
func CartFromLines(lines []CartLine) *Cart {
	cart := NewCart()
	for _, line := range lines {
		if line.MenuItemID == "" || line.Quantity <= 0 {
			continue
		}
		cart.lines[line.MenuItemID] += line.Quantity
	}
	return cart
}

// Add increments the quantity of id, inserting it at 1.
func (c *Cart) Add(id string) {
	if id == "" {
		return
	}
	if c.lines == nil {
		c.lines = make(map[string]int)
	}
	c.lines[id]++
}

// Remove decrements the quantity of id and drops the line at zero.
func (c *Cart) Remove(id string) {
	qty, ok := c.lines[id]
	if !ok {
		return
	}
	if qty <= 1 {
		delete(c.lines, id)
		return
	}
	c.lines[id] = qty - 1
}

// Quantity returns the quantity of id.
func (c *Cart) Quantity(id string) int {
	return c.lines[id]
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.lines) == 0
}

// Count returns the number of units across all lines.
func (c *Cart) Count() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, qty := range c.lines {
		total += qty
	}
	return total
}

// Lines returns the cart contents sorted by menu item id.
func (c *Cart) Lines() []CartLine {
	if c == nil {
		return nil
	}
	out := make([]CartLine, 0, len(c.lines))
	for id, qty := range c.lines {
		out = append(out, CartLine{MenuItemID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MenuItemID < out[j].MenuItemID })
	return out
}

// Total sums price x quantity using prices keyed by menu item id. Items
// missing from prices contribute nothing.
func (c *Cart) Total(prices map[string]float64) float64 {
	if c == nil {
		return 0
	}
	total := 0.0
	for id, qty := range c.lines {
		total += prices[id] * float64(qty)
	}
	return total
}

// Clear empties the cart.
func (c *Cart) Clear() {
	if c == nil {
		return
	}
	c.lines = make(map[string]int)
}
