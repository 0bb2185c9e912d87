package order

import (
	"slices"

	"github.com/shopspring/decimal"

	"tiffinbill/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Cart is the in-progress selection of catalog items. It is not safe for
// concurrent use; the owning service serializes access.
type Cart struct {
	lines []domain.OrderLine
}

func NewCart(lines []domain.OrderLine) *Cart {
	c := &Cart{}
	for _, line := range lines {
		if line.ID == "" || line.Quantity < 1 {
			continue
		}
		c.lines = append(c.lines, line)
	}
	return c
}

// Add increments the line for item, or appends a new line with quantity 1.
// The unit price is frozen at the moment the line is created.
func (c *Cart) Add(item domain.CatalogItem) domain.OrderLine {
	if i := c.index(item.ID); i >= 0 {
		c.lines[i].Quantity++
		return c.lines[i]
	}
	line := domain.OrderLine{CatalogItem: item, Quantity: 1}
	c.lines = append(c.lines, line)
	return line
}

func (c *Cart) SetQuantity(itemID string, quantity int) {
	i := c.index(itemID)
	if i < 0 {
		return
	}
	if quantity < 1 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return
	}
	c.lines[i].Quantity = quantity
}

func (c *Cart) Remove(itemID string) {
	if i := c.index(itemID); i >= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Lines() []domain.OrderLine {
	return slices.Clone(c.lines)
}

func (c *Cart) Summary(taxPercentage decimal.Decimal) domain.OrderSummary {
	return Summarize(c.lines, taxPercentage)
}

// Summarize recomputes the totals from lines on every call.
func Summarize(lines []domain.OrderLine, taxPercentage decimal.Decimal) domain.OrderSummary {
	subtotal := decimal.Zero
	items := 0
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
		items += line.Quantity
	}
	tax := subtotal.Mul(taxPercentage).Div(hundred)
	return domain.OrderSummary{
		LineCount: len(lines),
		ItemCount: items,
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal.Add(tax),
	}
}

func (c *Cart) index(itemID string) int {
	return slices.IndexFunc(c.lines, func(line domain.OrderLine) bool {
		return line.ID == itemID
	})
}
