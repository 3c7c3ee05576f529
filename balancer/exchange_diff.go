package balancer

import (
	"context"

	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

const exchangeDiffLabel = "Exchange Difference"

func exchangeDiffID(sourceID string) string {
	return sourceID + "/xd"
}

// exchangeDiff compares the value of a matched line at the statement line's rate with the value it
// was booked at. The difference is computed in company currency only. No line is produced when the
// difference stays within tolerance.
func (b *Balancer) exchangeDiff(ctx context.Context, matched Line) (Line, bool) {
	if matched.Currency == b.company.Currency {
		return Line{}, false
	}
	converted, ok := b.toCompany(ctx, matched.AmountCurrency, matched.Currency)
	if !ok {
		return Line{}, false
	}
	diff := converted.Sub(matched.Balance)
	if !b.worthRecording(diff) {
		return Line{}, false
	}
	return Line{
		ID:             exchangeDiffID(matched.ID),
		Flag:           model.ExchangeDiff{SourceLineID: matched.ID},
		AccountID:      b.exchangeAccount(diff),
		PartnerID:      matched.PartnerID,
		Currency:       matched.Currency,
		AmountCurrency: decimal.Zero,
		Balance:        diff,
		Label:          exchangeDiffLabel,
	}, true
}

func (b *Balancer) worthRecording(diff decimal.Decimal) bool {
	return !diff.IsZero() && diff.Abs().GreaterThan(b.opts.ExchangeDiffTolerance)
}

// exchangeAccount routes a debit to the expense exchange account and a credit to the income one.
func (b *Balancer) exchangeAccount(balance decimal.Decimal) string {
	if balance.IsPositive() {
		return b.company.ExpenseExchangeAccountID
	}
	return b.company.IncomeExchangeAccountID
}
