package balancer

import (
	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

// computeAutoBalance returns the line that closes lines, or false when they already balance.
// The line is expressed in the statement line's transaction currency. Lines in another currency
// count towards its amount_currency at the statement line's own ratio.
func (b *Balancer) computeAutoBalance(lines []Line) (Line, bool) {
	st := b.statement
	cur := st.TransactionCurrency()

	var balance, amountCurrency decimal.Decimal
	for _, l := range lines {
		balance = balance.Add(l.Balance)
	}
	balance = balance.Neg()

	if !st.HasForeignCurrency() {
		amountCurrency = balance
	} else {
		for _, l := range lines {
			switch {
			case l.Currency == cur:
				amountCurrency = amountCurrency.Add(l.AmountCurrency)
			case !st.Amount.IsZero():
				amountCurrency = amountCurrency.Add(currency.Round(l.Balance.Mul(st.AmountCurrency).Div(st.Amount), cur))
			}
		}
		amountCurrency = amountCurrency.Neg()
	}

	if balance.IsZero() && amountCurrency.IsZero() {
		return Line{}, false
	}
	return Line{
		ID:             autoBalanceLineID,
		Flag:           model.AutoBalance{},
		AccountID:      b.company.SuspenseAccountID,
		PartnerID:      st.PartnerID,
		Currency:       cur,
		AmountCurrency: amountCurrency,
		Balance:        balance,
		Label:          st.PaymentRef,
	}, true
}
