package balancer

import (
	"context"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SelectReconcileModel instantiates the template lines of a write-off model against the current
// residual. Lines a previously selected model created are replaced. Taxes on template lines are
// computed with the template amount as the gross figure.
func (b *Balancer) SelectReconcileModel(ctx context.Context, m model.ReconcileModel) ([]Line, error) {
	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		kept := make([]Line, 0, len(inputs))
		dropped := map[string]bool{}
		for _, l := range inputs {
			if _, ok := l.Flag.(model.Manual); ok && l.SourceRuleID != "" {
				dropped[l.ID] = true
				continue
			}
			kept = append(kept, l)
		}
		kept = dropDerivedOf(kept, dropped)

		current, err := b.recompute(ctx, kept)
		if err != nil {
			return nil, err
		}
		var auto Line
		for _, l := range current {
			if _, ok := l.Flag.(model.AutoBalance); ok {
				auto = l
			}
		}
		if auto.ID == "" {
			return kept, nil
		}

		stAmount := b.statement.TransactionAmount().Neg()
		for _, tmpl := range m.Lines {
			ml := ManualLine{
				AccountID:    tmpl.AccountID,
				Label:        tmpl.Label,
				Currency:     auto.Currency,
				Taxes:        tmpl.Taxes,
				SourceRuleID: m.ModelID,
				TaxIncluded:  true,
			}
			if ml.Label == "" {
				ml.Label = m.Name
			}
			switch tmpl.AmountType {
			case model.AmountPercentage:
				share := tmpl.Amount.Div(hundred)
				ml.AmountCurrency = auto.AmountCurrency.Mul(share)
				balance := currency.Round(auto.Balance.Mul(share), b.company.Currency)
				ml.Balance = &balance
			case model.AmountPercentageStLine:
				share := tmpl.Amount.Div(hundred)
				ml.AmountCurrency = stAmount.Mul(share)
				balance := currency.Round(b.statement.Amount.Neg().Mul(share), b.company.Currency)
				ml.Balance = &balance
			default:
				amount := tmpl.Amount.Abs()
				if auto.AmountCurrency.IsNegative() || (auto.AmountCurrency.IsZero() && stAmount.IsNegative()) {
					amount = amount.Neg()
				}
				ml.AmountCurrency = amount
			}
			if ml.AmountCurrency.IsZero() {
				continue
			}
			line, err := b.newManualLine(ctx, ml)
			if err != nil {
				return nil, err
			}
			kept = append(kept, line)
		}
		return kept, nil
	})
}

func dropDerivedOf(lines []Line, dropped map[string]bool) []Line {
	if len(dropped) == 0 {
		return lines
	}
	out := lines[:0]
	for _, l := range lines {
		if t, ok := l.Flag.(model.TaxLine); ok && dropped[t.BaseLineID] {
			continue
		}
		out = append(out, l)
	}
	return out
}
