package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// DiscountTerm is an early payment discount attached to an open item.
// Untaxed and tax amounts are signed like the item itself and expressed in the item currency.
type DiscountTerm struct {
	Percentage            decimal.Decimal `json:"percentage"`
	DiscountDate          time.Time       `json:"discount_date"`
	UntaxedAmountCurrency decimal.Decimal `json:"untaxed_amount_currency"`
	TaxAmountCurrency     decimal.Decimal `json:"tax_amount_currency"`
	TaxAccountID          string          `json:"tax_account_id,omitempty"`
}

// Applies reports whether a payment made on date still qualifies for the discount.
func (d DiscountTerm) Applies(date time.Time) bool {
	return !date.After(d.DiscountDate)
}

// Split returns the untaxed and tax parts of the discount under the given computation mode.
// Only the included mode discounts the tax part.
func (d DiscountTerm) Split(mode EarlyPayDiscountMode, places int32) (untaxed, tax decimal.Decimal) {
	rate := d.Percentage.Div(decimal.NewFromInt(100))
	untaxed = d.UntaxedAmountCurrency.Mul(rate).Round(places)
	tax = decimal.Zero
	if mode == EarlyPayDiscountIncluded {
		tax = d.TaxAmountCurrency.Mul(rate).Round(places)
	}
	return untaxed, tax
}

// OpenItem is an unpaid receivable or payable entry eligible for matching.
// AmountCurrency and Balance hold the open residual; the Original fields keep the booked figures.
type OpenItem struct {
	ID                     int64           `json:"-"`
	ItemID                 string          `json:"item_id"`
	CompanyID              string          `json:"company_id"`
	PartnerID              string          `json:"partner_id,omitempty"`
	AccountID              string          `json:"account_id"`
	Currency               string          `json:"currency"`
	AmountCurrency         decimal.Decimal `json:"amount_currency"`
	Balance                decimal.Decimal `json:"balance"`
	OriginalAmountCurrency decimal.Decimal `json:"original_amount_currency"`
	OriginalBalance        decimal.Decimal `json:"original_balance"`
	Date                   time.Time       `json:"date"`
	Reference              string          `json:"reference,omitempty"`
	Label                  string          `json:"label,omitempty"`
	DiscountTerm           *DiscountTerm   `json:"discount_term,omitempty"`
	Reconciled             bool            `json:"reconciled"`
	CreatedAt              time.Time       `json:"created_at"`
}

// OpenItemQuery filters the Open-Item Source. Empty fields are not applied.
type OpenItemQuery struct {
	CompanyID  string
	PartnerID  string
	Currency   string
	DateCutoff *time.Time
	Limit      int
}

func (o OpenItem) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.CompanyID, validation.Required),
		validation.Field(&o.AccountID, validation.Required),
		validation.Field(&o.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&o.Date, validation.Required),
		validation.Field(&o.AmountCurrency, validation.By(func(interface{}) error {
			if o.AmountCurrency.IsZero() {
				return errors.New("cannot be zero")
			}
			if o.Balance.Sign() != o.AmountCurrency.Sign() && !o.Balance.IsZero() {
				return errors.New("must carry the same sign as balance")
			}
			return nil
		})),
		validation.Field(&o.DiscountTerm, validation.By(func(interface{}) error {
			if o.DiscountTerm == nil {
				return nil
			}
			if !o.DiscountTerm.Percentage.IsPositive() || o.DiscountTerm.Percentage.GreaterThan(decimal.NewFromInt(100)) {
				return errors.New("percentage must be between 0 and 100")
			}
			return nil
		})),
	)
}
