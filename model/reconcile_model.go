package model

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleInvoiceMatching    RuleType = "invoice_matching"
	RuleWriteoffSuggestion RuleType = "writeoff_suggestion"
	RuleWriteoffButton     RuleType = "writeoff_button"
)

// Condition fields and operators understood by the matching-rule engine.
const (
	FieldJournal   = "journal"
	FieldNature    = "nature"
	FieldAmount    = "amount"
	FieldLabel     = "label"
	FieldReference = "reference"
	FieldPartner   = "partner"

	OperatorEquals      = "equals"
	OperatorIn          = "in"
	OperatorContains    = "contains"
	OperatorNotContains = "not_contains"
	OperatorRegex       = "match_regex"
	OperatorLower       = "lower"
	OperatorGreater     = "greater"
	OperatorBetween     = "between"

	NatureReceived = "amount_received"
	NaturePaid     = "amount_paid"
	NatureBoth     = "both"
)

// MatchCondition is one predicate a statement line must satisfy for a reconcile model to apply.
type MatchCondition struct {
	Field          string          `json:"field" yaml:"field"`
	Operator       string          `json:"operator" yaml:"operator"`
	Value          string          `json:"value,omitempty" yaml:"value,omitempty"`
	Values         []string        `json:"values,omitempty" yaml:"values,omitempty"`
	Min            decimal.Decimal `json:"min" yaml:"min"`
	Max            decimal.Decimal `json:"max" yaml:"max"`
	AllowableDrift float64         `json:"allowable_drift" yaml:"allowable_drift"`
}

// MatchesAmount evaluates an amount condition against the absolute statement amount.
// Bounds of "between" are inclusive; "equals" compares against Min.
func (c MatchCondition) MatchesAmount(amount decimal.Decimal) bool {
	amount = amount.Abs()
	switch c.Operator {
	case OperatorLower:
		return compare(amount, "<", c.Max)
	case OperatorGreater:
		return compare(amount, ">", c.Min)
	case OperatorBetween:
		return compare(amount, ">=", c.Min) && compare(amount, "<=", c.Max)
	case OperatorEquals:
		return compare(amount, "==", c.Min)
	}
	return false
}

type ToleranceType string

const (
	TolerancePercentage  ToleranceType = "percentage"
	ToleranceFixedAmount ToleranceType = "fixed_amount"
)

// PaymentTolerance lets an invoice_matching model write off a small remaining difference.
type PaymentTolerance struct {
	Type      ToleranceType   `json:"type" yaml:"type"`
	Param     decimal.Decimal `json:"param" yaml:"param"`
	AccountID string          `json:"account_id" yaml:"account_id"`
	Label     string          `json:"label,omitempty" yaml:"label,omitempty"`
}

// Allows reports whether residual may be written off when matching items worth total.
func (p *PaymentTolerance) Allows(residual, total decimal.Decimal) bool {
	if p == nil || p.Param.IsZero() {
		return false
	}
	residual = residual.Abs()
	switch p.Type {
	case TolerancePercentage:
		if total.IsZero() {
			return false
		}
		return residual.Div(total.Abs()).Mul(decimal.NewFromInt(100)).LessThanOrEqual(p.Param)
	case ToleranceFixedAmount:
		return residual.LessThanOrEqual(p.Param)
	}
	return false
}

type AmountType string

const (
	AmountPercentage       AmountType = "percentage"
	AmountFixed            AmountType = "fixed"
	AmountPercentageStLine AmountType = "percentage_st_line"
)

// ModelLine is a template line a write-off model instantiates on the statement line.
type ModelLine struct {
	AccountID  string          `json:"account_id" yaml:"account_id"`
	AmountType AmountType      `json:"amount_type" yaml:"amount_type"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	Label      string          `json:"label,omitempty" yaml:"label,omitempty"`
	TaxIDs     []string        `json:"tax_ids,omitempty" yaml:"tax_ids,omitempty"`
	Taxes      []Tax           `json:"-" yaml:"-"`
}

// ReconcileModel is a named matching rule.
type ReconcileModel struct {
	ID               int64             `json:"-" yaml:"-"`
	ModelID          string            `json:"model_id" yaml:"model_id"`
	CompanyID        string            `json:"company_id" yaml:"company_id"`
	Name             string            `json:"name" yaml:"name"`
	Sequence         int               `json:"sequence" yaml:"sequence"`
	RuleType         RuleType          `json:"rule_type" yaml:"rule_type"`
	AutoReconcile    bool              `json:"auto_reconcile" yaml:"auto_reconcile"`
	Active           bool              `json:"active" yaml:"active"`
	Conditions       []MatchCondition  `json:"conditions" yaml:"conditions"`
	PaymentTolerance *PaymentTolerance `json:"payment_tolerance,omitempty" yaml:"payment_tolerance,omitempty"`
	Lines            []ModelLine       `json:"lines" yaml:"lines"`
	CreatedAt        time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time         `json:"updated_at" yaml:"-"`
}

// AllowsUnattended reports whether the scheduler may validate a line this model was applied to.
func (m ReconcileModel) AllowsUnattended() bool {
	return m.AutoReconcile && (m.RuleType == RuleInvoiceMatching || m.RuleType == RuleWriteoffSuggestion)
}

func (m ReconcileModel) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.CompanyID, validation.Required),
		validation.Field(&m.RuleType, validation.Required,
			validation.In(RuleInvoiceMatching, RuleWriteoffSuggestion, RuleWriteoffButton)),
		validation.Field(&m.Conditions, validation.Each(validation.By(validateCondition))),
		validation.Field(&m.Lines,
			validation.When(m.RuleType != RuleInvoiceMatching, validation.Required),
			validation.Each(validation.By(validateModelLine))),
		validation.Field(&m.PaymentTolerance, validation.By(func(value interface{}) error {
			p, _ := value.(*PaymentTolerance)
			if p == nil {
				return nil
			}
			return validation.ValidateStruct(p,
				validation.Field(&p.Type, validation.Required, validation.In(TolerancePercentage, ToleranceFixedAmount)),
				validation.Field(&p.AccountID, validation.Required),
			)
		})),
	)
}

func validateCondition(value interface{}) error {
	c, ok := value.(MatchCondition)
	if !ok {
		return validation.NewError("validation_condition", "invalid condition")
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Field, validation.Required,
			validation.In(FieldJournal, FieldNature, FieldAmount, FieldLabel, FieldReference, FieldPartner)),
		validation.Field(&c.Operator, validation.Required),
		validation.Field(&c.AllowableDrift, validation.Min(0.0), validation.Max(100.0)),
	)
	if err != nil {
		return err
	}
	if c.Operator == OperatorRegex {
		if _, err := regexp.Compile(c.Value); err != nil {
			return validation.NewError("validation_condition_regex", "invalid regular expression")
		}
	}
	if c.Operator == OperatorBetween && c.Min.GreaterThan(c.Max) {
		return validation.NewError("validation_condition_range", "min must not exceed max")
	}
	return nil
}

func validateModelLine(value interface{}) error {
	l, ok := value.(ModelLine)
	if !ok {
		return validation.NewError("validation_model_line", "invalid model line")
	}
	return validation.ValidateStruct(&l,
		validation.Field(&l.AccountID, validation.Required),
		validation.Field(&l.AmountType, validation.Required,
			validation.In(AmountPercentage, AmountFixed, AmountPercentageStLine)),
	)
}
