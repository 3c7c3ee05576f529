package balancer

import (
	"context"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
)

// Field names the part of a line an Edit changes.
type Field string

const (
	FieldAccount        Field = "account"
	FieldPartner        Field = "partner"
	FieldLabel          Field = "label"
	FieldBalance        Field = "balance"
	FieldAmountCurrency Field = "amount_currency"
	FieldTaxes          Field = "taxes"
)

// Edit is a single field change on a line.
type Edit struct {
	Field  Field
	Value  string
	Amount decimal.Decimal
	Taxes  []model.Tax
}

func EditAccount(accountID string) Edit { return Edit{Field: FieldAccount, Value: accountID} }

func EditPartner(partnerID string) Edit { return Edit{Field: FieldPartner, Value: partnerID} }

func EditLabel(label string) Edit { return Edit{Field: FieldLabel, Value: label} }

// EditBalance sets the company-currency amount of a line.
func EditBalance(amount decimal.Decimal) Edit { return Edit{Field: FieldBalance, Amount: amount} }

// EditAmountCurrency sets the amount of a line in its own currency.
func EditAmountCurrency(amount decimal.Decimal) Edit {
	return Edit{Field: FieldAmountCurrency, Amount: amount}
}

// EditTaxes replaces the taxes of a line. An empty set removes them.
func EditTaxes(taxes []model.Tax) Edit { return Edit{Field: FieldTaxes, Taxes: taxes} }

// EditLine applies an edit to the line at index. Editing the auto_balance line turns it into a manual
// line; derived lines that are edited stop being recomputed for as long as their source exists.
func (b *Balancer) EditLine(ctx context.Context, index int, e Edit) ([]Line, error) {
	target, err := b.lineAt(index)
	if err != nil {
		return nil, err
	}
	if _, ok := target.Flag.(model.Liquidity); ok {
		return nil, model.ErrLineNotEditable
	}

	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		if _, ok := target.Flag.(model.AutoBalance); ok {
			line := cloneLine(target)
			line.ID = b.nextID()
			line.Flag = model.Manual{}
			line.ExplicitBalance = line.Balance
			line.ExplicitAmountCurrency = line.AmountCurrency
			if err := b.applyEdit(ctx, &line, e); err != nil {
				return nil, err
			}
			return append(inputs, line), nil
		}

		pos := -1
		for i, l := range inputs {
			if l.ID == target.ID {
				pos = i
				break
			}
		}
		if pos < 0 {
			inputs = append(inputs, cloneLine(target))
			pos = len(inputs) - 1
		}
		if err := b.applyEdit(ctx, &inputs[pos], e); err != nil {
			return nil, err
		}
		return inputs, nil
	})
}

func (b *Balancer) applyEdit(ctx context.Context, l *Line, e Edit) error {
	switch f := l.Flag.(type) {
	case model.MatchedItem:
		return b.editMatched(ctx, l, f.Item, e)
	case model.Manual:
		return b.editManual(ctx, l, e)
	default:
		return b.editDerived(ctx, l, e)
	}
}

// editMatched keeps a matched line valued at the rate its item was booked at.
func (b *Balancer) editMatched(ctx context.Context, l *Line, item model.OpenItem, e Edit) error {
	switch e.Field {
	case FieldLabel:
		l.Label = e.Value
		return nil
	case FieldTaxes:
		l.Taxes = append([]model.Tax(nil), e.Taxes...)
		l.TaxMode = model.TaxModeExcluded
		return nil
	case FieldAmountCurrency:
		l.AmountCurrency = currency.Round(e.Amount, l.Currency)
	case FieldBalance:
		amount := currency.Round(e.Amount, b.company.Currency)
		if l.Currency != b.company.Currency {
			converted, ok := b.fromCompany(ctx, amount, l.Currency)
			if !ok {
				return nil
			}
			amount = converted
		}
		l.AmountCurrency = amount
	default:
		return model.ErrLineNotEditable
	}
	l.Balance = b.bookedBalance(item, l.AmountCurrency)
	l.ManuallyEdited = true
	return nil
}

func (b *Balancer) editManual(ctx context.Context, l *Line, e Edit) error {
	switch e.Field {
	case FieldLabel:
		l.Label = e.Value
	case FieldPartner:
		l.PartnerID = e.Value
	case FieldAccount:
		l.AccountID = e.Value
		if len(l.Taxes) > 0 {
			// the amounts the user sees become the gross figure
			taxBalance, taxAmount := b.taxTotals(l.ID)
			l.TaxMode = model.TaxModeIncluded
			l.GrossBalance = l.Balance.Add(taxBalance)
			l.GrossAmountCurrency = l.AmountCurrency.Add(taxAmount)
		}
	case FieldTaxes:
		setTaxes(l, e.Taxes)
	case FieldBalance:
		l.Balance = currency.Round(e.Amount, b.company.Currency)
		if l.Currency == b.company.Currency {
			l.AmountCurrency = l.Balance
		} else if converted, ok := b.fromCompany(ctx, l.Balance, l.Currency); ok {
			l.AmountCurrency = converted
		}
		b.markExplicit(l)
	case FieldAmountCurrency:
		l.AmountCurrency = currency.Round(e.Amount, l.Currency)
		if converted, ok := b.toCompany(ctx, l.AmountCurrency, l.Currency); ok {
			l.Balance = converted
		} else {
			l.Balance = decimal.Zero
		}
		b.markExplicit(l)
	default:
		return model.ErrLineNotEditable
	}
	return nil
}

func (b *Balancer) markExplicit(l *Line) {
	l.ManuallyEdited = true
	l.ExplicitBalance = l.Balance
	l.ExplicitAmountCurrency = l.AmountCurrency
	if len(l.Taxes) > 0 {
		l.TaxMode = model.TaxModeExcluded
	}
}

// editDerived pins an exchange difference, tax or early payment line.
func (b *Balancer) editDerived(ctx context.Context, l *Line, e Edit) error {
	_, isExchange := l.Flag.(model.ExchangeDiff)
	if ep, ok := l.Flag.(model.EarlyPayment); ok && ep.Part == model.EarlyPaymentExchange {
		isExchange = true
	}

	switch e.Field {
	case FieldLabel:
		l.Label = e.Value
	case FieldAccount:
		l.AccountID = e.Value
	case FieldPartner:
		l.PartnerID = e.Value
	case FieldBalance:
		l.Balance = currency.Round(e.Amount, b.company.Currency)
		switch {
		case isExchange:
		case l.Currency == b.company.Currency:
			l.AmountCurrency = l.Balance
		default:
			if converted, ok := b.fromCompany(ctx, l.Balance, l.Currency); ok {
				l.AmountCurrency = converted
			}
		}
	case FieldAmountCurrency:
		if isExchange {
			return model.ErrLineNotEditable
		}
		l.AmountCurrency = currency.Round(e.Amount, l.Currency)
		if converted, ok := b.toCompany(ctx, l.AmountCurrency, l.Currency); ok {
			l.Balance = converted
		}
	default:
		return model.ErrLineNotEditable
	}
	l.ManuallyEdited = true
	return nil
}

// newManualLine builds a manual line. Amounts default to the statement line's transaction currency.
func (b *Balancer) newManualLine(ctx context.Context, ml ManualLine) (Line, error) {
	if ml.AccountID == "" {
		return Line{}, &model.ValidationError{Reason: "manual line requires an account"}
	}
	cur := ml.Currency
	if cur == "" {
		cur = b.statement.TransactionCurrency()
	}
	amount := currency.Round(ml.AmountCurrency, cur)

	var balance decimal.Decimal
	switch {
	case ml.Balance != nil:
		balance = currency.Round(*ml.Balance, b.company.Currency)
	case cur == b.company.Currency:
		balance = amount
	default:
		balance, _ = b.toCompany(ctx, amount, cur)
	}

	partner := ml.PartnerID
	if partner == "" {
		partner = b.statement.PartnerID
	}
	line := Line{
		ID:                     b.nextID(),
		Flag:                   model.Manual{},
		AccountID:              ml.AccountID,
		PartnerID:              partner,
		Currency:               cur,
		AmountCurrency:         amount,
		Balance:                balance,
		Label:                  ml.Label,
		Taxes:                  append([]model.Tax(nil), ml.Taxes...),
		SourceRuleID:           ml.SourceRuleID,
		ManuallyEdited:         ml.SourceRuleID == "",
		ExplicitBalance:        balance,
		ExplicitAmountCurrency: amount,
	}
	if len(line.Taxes) > 0 {
		if ml.TaxIncluded {
			line.TaxMode = model.TaxModeIncluded
			line.GrossBalance = balance
			line.GrossAmountCurrency = amount
		} else {
			line.TaxMode = model.TaxModeExcluded
		}
	}
	return line, nil
}
