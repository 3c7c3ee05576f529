package balancer

import (
	"context"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/jerry-enebeli/bankrec/tax"
	"github.com/shopspring/decimal"
)

func taxLineID(baseID, taxID, repartitionID string) string {
	return baseID + "/tax/" + taxID + "/" + repartitionID
}

// computeTaxes expands the taxes of base into tax lines. In tax-included mode the gross figure is
// fixed: the base is solved by dividing out the total rate and the last tax line absorbs rounding,
// so base plus taxes reproduces the gross exactly. In tax-excluded mode the base is fixed.
func (b *Balancer) computeTaxes(ctx context.Context, base *Line) ([]Line, error) {
	companyCur := b.company.Currency
	sameCurrency := base.Currency == companyCur

	if base.TaxMode == model.TaxModeNone {
		base.TaxMode = model.TaxModeExcluded
	}
	if base.TaxMode == model.TaxModeIncluded {
		divisor := decimal.NewFromInt(1).Add(tax.TotalRate(base.Taxes))
		base.Balance = currency.Round(base.GrossBalance.Div(divisor), companyCur)
		base.AmountCurrency = currency.Round(base.GrossAmountCurrency.Div(divisor), base.Currency)
		if sameCurrency {
			base.AmountCurrency = base.Balance
		}
	}

	var (
		lines []Line
		tags  []string
		seen  = map[string]bool{}
	)
	for _, t := range base.Taxes {
		refund := t.IsRefund(base.Balance)
		for _, tag := range tax.BaseTags(t, refund) {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}

		specs, err := b.taxes.Expand(ctx, t, base.Balance, base.AmountCurrency, refund)
		if err != nil {
			return nil, err
		}
		for _, spec := range specs {
			// no invoice backs a statement line, so cash-basis taxes skip their transition account
			account := spec.AccountID
			if account == "" {
				account = base.AccountID
			}
			line := Line{
				ID:             taxLineID(base.ID, spec.TaxID, spec.RepartitionID),
				Flag:           model.TaxLine{BaseLineID: base.ID, TaxID: spec.TaxID, RepartitionID: spec.RepartitionID},
				AccountID:      account,
				PartnerID:      base.PartnerID,
				Currency:       base.Currency,
				AmountCurrency: currency.Round(spec.AmountCurrency, base.Currency),
				Balance:        currency.Round(spec.Balance, companyCur),
				Label:          t.Name,
				TaxTagIDs:      spec.TagIDs,
			}
			if sameCurrency {
				line.AmountCurrency = line.Balance
			}
			lines = append(lines, line)
		}
	}
	base.TaxTagIDs = tags

	if base.TaxMode == model.TaxModeIncluded && len(lines) > 0 {
		balance, amountCurrency := base.Balance, base.AmountCurrency
		for _, l := range lines {
			balance = balance.Add(l.Balance)
			amountCurrency = amountCurrency.Add(l.AmountCurrency)
		}
		last := &lines[len(lines)-1]
		last.Balance = last.Balance.Add(base.GrossBalance.Sub(balance))
		last.AmountCurrency = last.AmountCurrency.Add(base.GrossAmountCurrency.Sub(amountCurrency))
	}
	return lines, nil
}

// taxTotals sums the current tax lines computed on a base line.
func (b *Balancer) taxTotals(baseID string) (balance, amountCurrency decimal.Decimal) {
	for _, l := range b.lines {
		if t, ok := l.Flag.(model.TaxLine); ok && t.BaseLineID == baseID {
			balance = balance.Add(l.Balance)
			amountCurrency = amountCurrency.Add(l.AmountCurrency)
		}
	}
	return balance, amountCurrency
}

// setTaxes changes the tax set of a line and picks the tax mode: a balance the user typed is kept as
// the base, any other balance is treated as the gross. Removing every tax restores the last explicit
// amounts.
func setTaxes(l *Line, taxes []model.Tax) {
	if len(taxes) == 0 {
		l.Taxes = nil
		l.TaxMode = model.TaxModeNone
		l.TaxTagIDs = nil
		l.Balance = l.ExplicitBalance
		l.AmountCurrency = l.ExplicitAmountCurrency
		return
	}
	if len(l.Taxes) == 0 {
		if l.ManuallyEdited {
			l.TaxMode = model.TaxModeExcluded
		} else {
			l.TaxMode = model.TaxModeIncluded
			l.GrossBalance = l.Balance
			l.GrossAmountCurrency = l.AmountCurrency
		}
	}
	l.Taxes = append([]model.Tax(nil), taxes...)
}
