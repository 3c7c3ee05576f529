package balancer

import (
	"context"
	"errors"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// toCompany converts an amount into company currency at the statement line's rate. The statement's
// own foreign currency uses the ratio reported by the bank; any other currency is converted by the
// converter in a single hop. ok is false when no usable rate exists.
func (b *Balancer) toCompany(ctx context.Context, amount decimal.Decimal, cur string) (decimal.Decimal, bool) {
	company := b.company.Currency
	if cur == company {
		return amount, true
	}
	st := b.statement
	if st.HasForeignCurrency() && cur == st.ForeignCurrency {
		if st.AmountCurrency.IsZero() || st.Amount.IsZero() {
			b.degenerate(cur, company)
			return decimal.Zero, false
		}
		return currency.Round(amount.Mul(st.Amount).Div(st.AmountCurrency), company), true
	}
	return b.convert(ctx, amount, cur, company)
}

// fromCompany converts a company-currency amount into cur at the statement line's rate.
func (b *Balancer) fromCompany(ctx context.Context, amount decimal.Decimal, cur string) (decimal.Decimal, bool) {
	company := b.company.Currency
	if cur == company {
		return amount, true
	}
	st := b.statement
	if st.HasForeignCurrency() && cur == st.ForeignCurrency {
		if st.AmountCurrency.IsZero() || st.Amount.IsZero() {
			b.degenerate(company, cur)
			return decimal.Zero, false
		}
		return currency.Round(amount.Mul(st.AmountCurrency).Div(st.Amount), cur), true
	}
	return b.convert(ctx, amount, company, cur)
}

func (b *Balancer) convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if b.converter == nil {
		b.degenerate(from, to)
		return decimal.Zero, false
	}
	converted, err := b.converter.Convert(ctx, amount, from, to, b.statement.Date)
	if err != nil {
		var warning *model.DegenerateRateWarning
		if !errors.As(err, &warning) {
			logrus.WithError(err).WithFields(logrus.Fields{"from": from, "to": to}).Error("currency conversion failed")
		}
		b.degenerate(from, to)
		return decimal.Zero, false
	}
	if converted.IsZero() && !amount.IsZero() {
		b.degenerate(from, to)
		return decimal.Zero, false
	}
	return converted, true
}

func (b *Balancer) degenerate(from, to string) {
	w := model.DegenerateRateWarning{From: from, To: to, Date: b.statement.Date}
	for _, existing := range b.warnings {
		if existing == w {
			return
		}
	}
	b.warnings = append(b.warnings, w)
	logrus.WithFields(logrus.Fields{
		"statement_line_id": b.statement.StatementLineID,
		"from":              from,
		"to":                to,
		"date":              b.statement.Date.Format("2006-01-02"),
	}).Warn("no usable currency rate, falling back to identity")
}

// residualIn expresses what the auto_balance line still leaves open in cur.
func (b *Balancer) residualIn(ctx context.Context, cur string) (decimal.Decimal, bool) {
	auto, ok := b.autoBalance()
	if !ok {
		return decimal.Zero, false
	}
	switch cur {
	case auto.Currency:
		return auto.AmountCurrency, true
	case b.company.Currency:
		return auto.Balance, true
	}
	return b.fromCompany(ctx, auto.Balance, cur)
}
