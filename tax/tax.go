// Package tax expands tax definitions into the tax lines they produce on a base amount.
package tax

import (
	"context"
	"fmt"

	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

// Engine expands a tax over a base amount. Returned amounts are not rounded; callers round to the
// minor units of the currency the line is kept in.
type Engine interface {
	Expand(ctx context.Context, tax model.Tax, baseBalance, baseAmountCurrency decimal.Decimal, isRefund bool) ([]model.TaxLineSpec, error)
}

// PercentEngine handles percent taxes: every tax repartition receives base × rate × factor.
type PercentEngine struct{}

func NewPercentEngine() *PercentEngine {
	return &PercentEngine{}
}

func (e *PercentEngine) Expand(_ context.Context, tax model.Tax, baseBalance, baseAmountCurrency decimal.Decimal, isRefund bool) ([]model.TaxLineSpec, error) {
	repartition := tax.Repartition(isRefund)
	if len(repartition) == 0 {
		return nil, fmt.Errorf("tax %s has no repartition lines", tax.TaxID)
	}

	rate := tax.Rate()
	hundred := decimal.NewFromInt(100)
	var specs []model.TaxLineSpec
	for _, rep := range repartition {
		if rep.Type != model.RepartitionTax {
			continue
		}
		factor := rep.FactorPercent.Div(hundred)
		spec := model.TaxLineSpec{
			TaxID:          tax.TaxID,
			RepartitionID:  rep.RepartitionID,
			AccountID:      rep.AccountID,
			CashBasis:      tax.CashBasis,
			TagIDs:         rep.TagIDs,
			Balance:        baseBalance.Mul(rate).Mul(factor),
			AmountCurrency: baseAmountCurrency.Mul(rate).Mul(factor),
		}
		if tax.CashBasis {
			spec.TransitionAccountID = tax.CashBasisTransitionAccountID
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// BaseTags returns the tags the base line of a tax carries.
func BaseTags(tax model.Tax, isRefund bool) []string {
	var tags []string
	for _, rep := range tax.Repartition(isRefund) {
		if rep.Type == model.RepartitionBase {
			tags = append(tags, rep.TagIDs...)
		}
	}
	return tags
}

// TotalRate is the sum of the effective rates of the taxes, used to split a tax-included amount.
func TotalRate(taxes []model.Tax) decimal.Decimal {
	total := decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, t := range taxes {
		factor := decimal.Zero
		for _, rep := range t.InvoiceRepartition {
			if rep.Type == model.RepartitionTax {
				factor = factor.Add(rep.FactorPercent.Div(hundred))
			}
		}
		total = total.Add(t.Rate().Mul(factor))
	}
	return total
}
