package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type TaxUse string

const (
	TaxUseSale     TaxUse = "sale"
	TaxUsePurchase TaxUse = "purchase"
	TaxUseNone     TaxUse = "none"
)

type RepartitionType string

const (
	RepartitionBase RepartitionType = "base"
	RepartitionTax  RepartitionType = "tax"
)

// TaxRepartition is one component a tax amount is spread over.
type TaxRepartition struct {
	RepartitionID string          `json:"repartition_id"`
	Type          RepartitionType `json:"type"`
	FactorPercent decimal.Decimal `json:"factor_percent"`
	AccountID     string          `json:"account_id,omitempty"`
	TagIDs        []string        `json:"tag_ids,omitempty"`
}

// Tax is a percent tax definition with its invoice and refund repartitions.
type Tax struct {
	TaxID                        string           `json:"tax_id"`
	CompanyID                    string           `json:"company_id"`
	Name                         string           `json:"name"`
	Amount                       decimal.Decimal  `json:"amount"`
	TypeTaxUse                   TaxUse           `json:"type_tax_use"`
	CashBasis                    bool             `json:"cash_basis"`
	CashBasisTransitionAccountID string           `json:"cash_basis_transition_account_id,omitempty"`
	InvoiceRepartition           []TaxRepartition `json:"invoice_repartition"`
	RefundRepartition            []TaxRepartition `json:"refund_repartition"`
}

// Rate returns the tax percentage as a fraction.
func (t Tax) Rate() decimal.Decimal {
	return t.Amount.Div(decimal.NewFromInt(100))
}

// Repartition returns the repartition lines to use for an invoice or a refund.
func (t Tax) Repartition(isRefund bool) []TaxRepartition {
	if isRefund {
		return t.RefundRepartition
	}
	return t.InvoiceRepartition
}

// IsRefund tells whether a base line with the given balance uses the refund repartition of the tax.
func (t Tax) IsRefund(baseBalance decimal.Decimal) bool {
	switch t.TypeTaxUse {
	case TaxUseSale:
		return baseBalance.IsNegative()
	case TaxUsePurchase:
		return baseBalance.IsPositive()
	}
	return false
}

func (t Tax) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.TypeTaxUse, validation.Required, validation.In(TaxUseSale, TaxUsePurchase, TaxUseNone)),
		validation.Field(&t.InvoiceRepartition, validation.Required),
		validation.Field(&t.CashBasisTransitionAccountID, validation.When(t.CashBasis, validation.Required)),
	)
}

// TaxLineSpec is one tax line produced by the tax engine for a base amount.
// AccountID is the final account; TransitionAccountID is set for cash-basis taxes.
type TaxLineSpec struct {
	TaxID               string          `json:"tax_id"`
	RepartitionID       string          `json:"repartition_id"`
	AccountID           string          `json:"account_id"`
	TransitionAccountID string          `json:"transition_account_id,omitempty"`
	CashBasis           bool            `json:"cash_basis"`
	TagIDs              []string        `json:"tag_ids,omitempty"`
	Balance             decimal.Decimal `json:"balance"`
	AmountCurrency      decimal.Decimal `json:"amount_currency"`
}
