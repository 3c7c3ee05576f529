package balancer

import (
	"context"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

const earlyPaymentLabel = "Early Payment Discount"

func earlyPaymentID(part model.EarlyPaymentPart, suffix string) string {
	if suffix == "" {
		return "ep/" + string(part)
	}
	return "ep/" + string(part) + "/" + suffix
}

type epTax struct {
	amountCurrency decimal.Decimal
	balance        decimal.Decimal
}

// earlyPaymentBlock builds the early payment lines when every matched item belongs to one partner,
// shares one currency, carries a discount term still open at the statement date, is matched in full
// without manual edits, and the rest of the line set leaves exactly the discounted total for them.
// Matched lines keep their full amounts; the block carries the discount. revalued is the sum of the
// exchange differences already recorded on the matched lines, so the block's exchange line only
// carries what the discount adds on top of them.
func (b *Balancer) earlyPaymentBlock(ctx context.Context, primary []Line, taxLines map[string][]Line, revalued decimal.Decimal) []Line {
	var matched []Line
	for _, p := range primary {
		if _, ok := p.Flag.(model.MatchedItem); ok {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	mode := b.discountMode()
	first := matched[0].Flag.(model.MatchedItem).Item
	cur := first.Currency
	places := currency.Places(cur)

	var (
		discounted, loss, lossBalance, bookedNet decimal.Decimal
		taxes                                    = map[string]epTax{}
		taxOrder                                 []string
	)
	for _, m := range matched {
		item := m.Flag.(model.MatchedItem).Item
		term := item.DiscountTerm
		if term == nil || m.ManuallyEdited || len(taxLines[m.ID]) > 0 ||
			item.PartnerID != first.PartnerID || item.Currency != cur ||
			!term.Applies(b.statement.Date) || !m.AmountCurrency.Equal(item.AmountCurrency.Neg()) {
			return nil
		}
		untaxed, taxed := term.Split(mode, places)
		discounted = discounted.Add(item.AmountCurrency.Sub(untaxed).Sub(taxed))
		loss = loss.Add(untaxed)
		lossBalance = lossBalance.Add(b.bookedShare(item, untaxed))
		bookedNet = bookedNet.Sub(item.Balance)
		if !taxed.IsZero() {
			if _, seen := taxes[term.TaxAccountID]; !seen {
				taxOrder = append(taxOrder, term.TaxAccountID)
			}
			t := taxes[term.TaxAccountID]
			t.amountCurrency = t.amountCurrency.Add(taxed)
			t.balance = t.balance.Add(b.bookedShare(item, taxed))
			taxes[term.TaxAccountID] = t
		}
	}

	target, converted, ok := b.openFor(ctx, primary, taxLines, cur)
	if !ok {
		return nil
	}
	tolerance := decimal.Zero
	if converted {
		tolerance = decimal.New(1, -places)
	}
	if target.Sub(discounted).Abs().GreaterThan(tolerance) {
		return nil
	}

	sameCurrency := cur == b.company.Currency
	block := []Line{{
		ID:             earlyPaymentID(model.EarlyPaymentLoss, ""),
		Flag:           model.EarlyPayment{Part: model.EarlyPaymentLoss},
		AccountID:      b.discountAccount(lossBalance),
		PartnerID:      first.PartnerID,
		Currency:       cur,
		AmountCurrency: loss,
		Balance:        lossBalance,
		Label:          earlyPaymentLabel,
	}}
	bookedNet = bookedNet.Add(lossBalance)
	for _, account := range taxOrder {
		t := taxes[account]
		block = append(block, Line{
			ID:             earlyPaymentID(model.EarlyPaymentTax, account),
			Flag:           model.EarlyPayment{Part: model.EarlyPaymentTax},
			AccountID:      account,
			PartnerID:      first.PartnerID,
			Currency:       cur,
			AmountCurrency: t.amountCurrency,
			Balance:        t.balance,
			Label:          earlyPaymentLabel,
		})
		bookedNet = bookedNet.Add(t.balance)
	}
	if sameCurrency {
		for i := range block {
			block[i].Balance = block[i].AmountCurrency
		}
		return block
	}

	if value, ok := b.toCompany(ctx, discounted.Neg(), cur); ok {
		if fx := value.Sub(bookedNet).Sub(revalued); b.worthRecording(fx) {
			block = append(block, Line{
				ID:             earlyPaymentID(model.EarlyPaymentExchange, ""),
				Flag:           model.EarlyPayment{Part: model.EarlyPaymentExchange},
				AccountID:      b.exchangeAccount(fx),
				PartnerID:      first.PartnerID,
				Currency:       cur,
				AmountCurrency: decimal.Zero,
				Balance:        fx,
				Label:          exchangeDiffLabel,
			})
		}
	}
	return block
}

// openFor sums, in cur, what the non-matched lines leave open for the matched items. converted
// reports whether a rate conversion was involved.
func (b *Balancer) openFor(ctx context.Context, primary []Line, taxLines map[string][]Line, cur string) (total decimal.Decimal, converted, ok bool) {
	add := func(l Line) bool {
		if l.Currency == cur {
			total = total.Add(l.AmountCurrency)
			return true
		}
		amount, ok := b.fromCompany(ctx, l.Balance, cur)
		converted = true
		total = total.Add(amount)
		return ok
	}
	for _, p := range primary {
		if _, isMatched := p.Flag.(model.MatchedItem); isMatched {
			continue
		}
		if !add(p) {
			return total, converted, false
		}
		for _, t := range taxLines[p.ID] {
			if !add(t) {
				return total, converted, false
			}
		}
	}
	return total, converted, true
}

// bookedShare values part of an item at the rate the item was booked at.
func (b *Balancer) bookedShare(item model.OpenItem, amount decimal.Decimal) decimal.Decimal {
	if item.AmountCurrency.IsZero() {
		return decimal.Zero
	}
	return currency.Round(item.Balance.Mul(amount).Div(item.AmountCurrency), b.company.Currency)
}

func (b *Balancer) discountAccount(balance decimal.Decimal) string {
	if balance.IsNegative() && b.company.EarlyPayDiscountGainAccount != "" {
		return b.company.EarlyPayDiscountGainAccount
	}
	return b.company.EarlyPayDiscountLossAccount
}

// openDiscount is the early payment discount an item still offers at the statement date.
func (b *Balancer) openDiscount(item model.OpenItem) decimal.Decimal {
	term := item.DiscountTerm
	if term == nil || !term.Applies(b.statement.Date) {
		return decimal.Zero
	}
	untaxed, taxed := term.Split(b.discountMode(), currency.Places(item.Currency))
	return untaxed.Add(taxed)
}

func (b *Balancer) discountMode() model.EarlyPayDiscountMode {
	if b.company.EarlyPayDiscountComputation == "" {
		return model.EarlyPayDiscountIncluded
	}
	return b.company.EarlyPayDiscountComputation
}
