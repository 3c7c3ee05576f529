package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// EarlyPayDiscountMode tells how an early payment discount is computed on taxed invoices.
type EarlyPayDiscountMode string

const (
	EarlyPayDiscountIncluded EarlyPayDiscountMode = "included"
	EarlyPayDiscountExcluded EarlyPayDiscountMode = "excluded"
	EarlyPayDiscountMixed    EarlyPayDiscountMode = "mixed"
)

// Company holds the accounting settings the reconciliation engine needs for one company.
type Company struct {
	CompanyID                   string               `json:"company_id"`
	Name                        string               `json:"name"`
	Currency                    string               `json:"currency"`
	SuspenseAccountID           string               `json:"suspense_account_id"`
	IncomeExchangeAccountID     string               `json:"income_exchange_account_id"`
	ExpenseExchangeAccountID    string               `json:"expense_exchange_account_id"`
	EarlyPayDiscountLossAccount string               `json:"early_pay_discount_loss_account_id"`
	EarlyPayDiscountGainAccount string               `json:"early_pay_discount_gain_account_id"`
	EarlyPayDiscountComputation EarlyPayDiscountMode `json:"early_pay_discount_computation"`
	CreatedAt                   time.Time            `json:"created_at"`
}

// StatementLine is one bank cash movement awaiting reconciliation.
// Amount is expressed in the journal currency (Currency); ForeignCurrency and AmountCurrency are set
// when the bank reported the movement in another currency.
type StatementLine struct {
	ID                 int64           `json:"-"`
	StatementLineID    string          `json:"statement_line_id"`
	CompanyID          string          `json:"company_id"`
	JournalID          string          `json:"journal_id"`
	LiquidityAccountID string          `json:"liquidity_account_id"`
	Date               time.Time       `json:"date"`
	Currency           string          `json:"currency"`
	Amount             decimal.Decimal `json:"amount"`
	ForeignCurrency    string          `json:"foreign_currency,omitempty"`
	AmountCurrency     decimal.Decimal `json:"amount_currency"`
	PartnerID          string          `json:"partner_id,omitempty"`
	PartnerName        string          `json:"partner_name,omitempty"`
	AccountNumber      string          `json:"account_number,omitempty"`
	PaymentRef         string          `json:"payment_ref"`
	Narration          string          `json:"narration,omitempty"`
	IsReconciled       bool            `json:"is_reconciled"`
	LastAutoCheck      *time.Time      `json:"last_auto_check,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HasForeignCurrency reports whether the bank reported the movement in a currency other than the journal's.
func (s StatementLine) HasForeignCurrency() bool {
	return s.ForeignCurrency != "" && s.ForeignCurrency != s.Currency
}

// TransactionCurrency is the currency the counterpart actually paid in.
func (s StatementLine) TransactionCurrency() string {
	if s.HasForeignCurrency() {
		return s.ForeignCurrency
	}
	return s.Currency
}

// TransactionAmount is the amount expressed in TransactionCurrency.
func (s StatementLine) TransactionAmount() decimal.Decimal {
	if s.HasForeignCurrency() {
		return s.AmountCurrency
	}
	return s.Amount
}

func (c Company) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&c.EarlyPayDiscountComputation,
			validation.In(EarlyPayDiscountIncluded, EarlyPayDiscountExcluded, EarlyPayDiscountMixed)),
	)
}

func (s StatementLine) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CompanyID, validation.Required),
		validation.Field(&s.JournalID, validation.Required),
		validation.Field(&s.LiquidityAccountID, validation.Required),
		validation.Field(&s.Date, validation.Required),
		validation.Field(&s.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&s.Amount, validation.By(func(interface{}) error {
			if s.Amount.IsZero() && s.AmountCurrency.IsZero() {
				return errors.New("cannot be zero")
			}
			return nil
		})),
		validation.Field(&s.AmountCurrency, validation.When(s.HasForeignCurrency(), validation.By(func(interface{}) error {
			if s.AmountCurrency.IsZero() {
				return errors.New("is required with a foreign currency")
			}
			return nil
		}))),
	)
}
