package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// FlagKind names the role a line plays in the reconciliation line set.
type FlagKind string

const (
	FlagLiquidity    FlagKind = "liquidity"
	FlagMatchedItem  FlagKind = "matched_item"
	FlagExchangeDiff FlagKind = "exchange_diff"
	FlagEarlyPayment FlagKind = "early_payment"
	FlagTaxLine      FlagKind = "tax_line"
	FlagManual       FlagKind = "manual"
	FlagAutoBalance  FlagKind = "auto_balance"
)

// Flag is a closed set of line kinds. Only the seven types below implement it.
type Flag interface {
	Kind() FlagKind
	isFlag()
}

// Liquidity is the line derived from the statement line itself.
type Liquidity struct{}

// MatchedItem references the open item the line settles.
type MatchedItem struct {
	Item OpenItem `json:"item"`
}

// ExchangeDiff adjusts the company-currency value of the matched line it follows.
type ExchangeDiff struct {
	SourceLineID string `json:"source_line_id"`
}

type EarlyPaymentPart string

const (
	EarlyPaymentLoss     EarlyPaymentPart = "discount"
	EarlyPaymentTax      EarlyPaymentPart = "tax"
	EarlyPaymentExchange EarlyPaymentPart = "exchange"
)

// EarlyPayment is one line of the early payment discount block.
type EarlyPayment struct {
	Part EarlyPaymentPart `json:"part"`
}

// TaxLine is one repartition component of a tax computed on a base line.
type TaxLine struct {
	BaseLineID    string `json:"base_line_id"`
	TaxID         string `json:"tax_id"`
	RepartitionID string `json:"repartition_id"`
}

// Manual is a line entered by hand or instantiated from a reconcile model.
type Manual struct{}

// AutoBalance absorbs whatever is left open, in the suspense account.
type AutoBalance struct{}

func (Liquidity) Kind() FlagKind    { return FlagLiquidity }
func (MatchedItem) Kind() FlagKind  { return FlagMatchedItem }
func (ExchangeDiff) Kind() FlagKind { return FlagExchangeDiff }
func (EarlyPayment) Kind() FlagKind { return FlagEarlyPayment }
func (TaxLine) Kind() FlagKind      { return FlagTaxLine }
func (Manual) Kind() FlagKind       { return FlagManual }
func (AutoBalance) Kind() FlagKind  { return FlagAutoBalance }

func (Liquidity) isFlag()    {}
func (MatchedItem) isFlag()  {}
func (ExchangeDiff) isFlag() {}
func (EarlyPayment) isFlag() {}
func (TaxLine) isFlag()      {}
func (Manual) isFlag()       {}
func (AutoBalance) isFlag()  {}

// FlagVisitor must handle every line kind; implementing it is how callers branch on a flag
// without forgetting a case.
type FlagVisitor[T any] interface {
	Liquidity(Liquidity) T
	MatchedItem(MatchedItem) T
	ExchangeDiff(ExchangeDiff) T
	EarlyPayment(EarlyPayment) T
	TaxLine(TaxLine) T
	Manual(Manual) T
	AutoBalance(AutoBalance) T
}

// VisitFlag dispatches f to the matching visitor method.
func VisitFlag[T any](f Flag, v FlagVisitor[T]) T {
	switch flag := f.(type) {
	case Liquidity:
		return v.Liquidity(flag)
	case MatchedItem:
		return v.MatchedItem(flag)
	case ExchangeDiff:
		return v.ExchangeDiff(flag)
	case EarlyPayment:
		return v.EarlyPayment(flag)
	case TaxLine:
		return v.TaxLine(flag)
	case Manual:
		return v.Manual(flag)
	case AutoBalance:
		return v.AutoBalance(flag)
	}
	panic(fmt.Sprintf("unknown line flag %T", f))
}

func decodeFlag(kind FlagKind, data json.RawMessage) (Flag, error) {
	var f Flag
	switch kind {
	case FlagLiquidity:
		f = Liquidity{}
	case FlagMatchedItem:
		var m MatchedItem
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case FlagExchangeDiff:
		var x ExchangeDiff
		if err := json.Unmarshal(data, &x); err != nil {
			return nil, err
		}
		return x, nil
	case FlagEarlyPayment:
		var e EarlyPayment
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case FlagTaxLine:
		var t TaxLine
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return t, nil
	case FlagManual:
		f = Manual{}
	case FlagAutoBalance:
		f = AutoBalance{}
	default:
		return nil, fmt.Errorf("unknown line flag %q", kind)
	}
	return f, nil
}

type TaxMode string

const (
	TaxModeNone     TaxMode = ""
	TaxModeIncluded TaxMode = "included"
	TaxModeExcluded TaxMode = "excluded"
)

// ReconciliationLine is one row of the working line set of a statement line.
type ReconciliationLine struct {
	ID             string          `json:"id"`
	Index          int             `json:"position_index"`
	Flag           Flag            `json:"-"`
	AccountID      string          `json:"account_id"`
	PartnerID      string          `json:"partner_id,omitempty"`
	Currency       string          `json:"currency"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
	Balance        decimal.Decimal `json:"balance"`
	Label          string          `json:"label,omitempty"`
	Taxes          []Tax           `json:"taxes,omitempty"`
	TaxTagIDs      []string        `json:"tax_tag_ids,omitempty"`
	SourceRuleID   string          `json:"source_rule_id,omitempty"`
	ManuallyEdited bool            `json:"manually_edited"`

	// Tax bookkeeping: the explicit figures are the last ones set from outside the engine, the
	// gross figures are fixed while the line is in tax-included mode.
	TaxMode                TaxMode         `json:"tax_mode,omitempty"`
	ExplicitBalance        decimal.Decimal `json:"explicit_balance"`
	ExplicitAmountCurrency decimal.Decimal `json:"explicit_amount_currency"`
	GrossBalance           decimal.Decimal `json:"gross_balance"`
	GrossAmountCurrency    decimal.Decimal `json:"gross_amount_currency"`
}

// Kind returns the flag kind, or an empty kind when the flag is unset.
func (l ReconciliationLine) Kind() FlagKind {
	if l.Flag == nil {
		return ""
	}
	return l.Flag.Kind()
}

// TaxIDs returns the ids of the taxes set on the line.
func (l ReconciliationLine) TaxIDs() []string {
	ids := make([]string, 0, len(l.Taxes))
	for _, t := range l.Taxes {
		ids = append(ids, t.TaxID)
	}
	return ids
}

type lineAlias ReconciliationLine

type lineJSON struct {
	lineAlias
	FlagKind FlagKind        `json:"flag"`
	FlagData json.RawMessage `json:"flag_data,omitempty"`
}

func (l ReconciliationLine) MarshalJSON() ([]byte, error) {
	out := lineJSON{lineAlias: lineAlias(l)}
	if l.Flag != nil {
		out.FlagKind = l.Flag.Kind()
		data, err := json.Marshal(l.Flag)
		if err != nil {
			return nil, err
		}
		if string(data) != "{}" {
			out.FlagData = data
		}
	}
	return json.Marshal(out)
}

func (l *ReconciliationLine) UnmarshalJSON(data []byte) error {
	var in lineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*l = ReconciliationLine(in.lineAlias)
	if in.FlagKind == "" {
		return nil
	}
	flag, err := decodeFlag(in.FlagKind, in.FlagData)
	if err != nil {
		return err
	}
	l.Flag = flag
	return nil
}
