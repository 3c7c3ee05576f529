package balancer

import (
	"fmt"

	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

// Check verifies that the line set can be posted: it balances to zero, every line is fully
// described, no open item is matched twice, and no matched line exceeds what its item leaves open.
func (b *Balancer) Check() error {
	var total decimal.Decimal
	seen := map[string]bool{}
	for _, l := range b.lines {
		total = total.Add(l.Balance)
		if l.AccountID == "" {
			return &model.ValidationError{Reason: fmt.Sprintf("line %d has no account", l.Index)}
		}
		if l.Currency == "" {
			return &model.ValidationError{Reason: fmt.Sprintf("line %d has no currency", l.Index)}
		}
		m, ok := l.Flag.(model.MatchedItem)
		if !ok {
			continue
		}
		if seen[m.Item.ItemID] {
			return &model.DuplicateMatchError{OpenItemID: m.Item.ItemID}
		}
		seen[m.Item.ItemID] = true
		open := m.Item.AmountCurrency
		if l.AmountCurrency.Sign() == open.Sign() || l.AmountCurrency.Abs().GreaterThan(open.Abs()) {
			return &model.ValidationError{Reason: fmt.Sprintf("line %d allocates more than item %s leaves open", l.Index, m.Item.ItemID)}
		}
		if !l.Balance.Equal(b.bookedBalance(m.Item, l.AmountCurrency)) {
			return &model.ValidationError{Reason: fmt.Sprintf("line %d is not valued at the booked rate of item %s", l.Index, m.Item.ItemID)}
		}
	}
	if !total.IsZero() {
		return &model.ValidationError{Reason: "lines do not balance: " + total.String()}
	}
	return nil
}

// Allocations returns the amount allocated to each matched open item.
func (b *Balancer) Allocations() []Allocation {
	var out []Allocation
	for _, l := range b.lines {
		if m, ok := l.Flag.(model.MatchedItem); ok {
			out = append(out, Allocation{
				Item:           m.Item,
				AmountCurrency: l.AmountCurrency.Neg(),
				Balance:        l.Balance.Neg(),
				Full:           l.AmountCurrency.Neg().Equal(m.Item.AmountCurrency),
			})
		}
	}
	return out
}

// Allocation is the part of an open item a statement line settles. Amounts carry the item's sign.
type Allocation struct {
	Item           model.OpenItem
	AmountCurrency decimal.Decimal
	Balance        decimal.Decimal
	Full           bool
}
