// Package balancer keeps the reconciliation line set of one statement line balanced.
//
// Every mutation rebuilds the derived lines (exchange differences, taxes, the early payment block and
// the auto_balance line) from the input lines: the liquidity line, matched items, manual lines and
// derived lines the user edited by hand. The auto_balance line is always computed last.
package balancer

import (
	"context"
	"fmt"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/jerry-enebeli/bankrec/tax"
	"github.com/shopspring/decimal"
)

// Options tune the balancer.
type Options struct {
	// ExchangeDiffTolerance is the largest company-currency difference that is not worth an
	// exchange_diff line. Zero records every difference that survives rounding.
	ExchangeDiffTolerance decimal.Decimal
}

type Line = model.ReconciliationLine

const (
	liquidityLineID   = "liquidity"
	autoBalanceLineID = "auto"
)

// Balancer holds the working line set of one statement line. It is not safe for concurrent use.
type Balancer struct {
	company   model.Company
	statement model.StatementLine
	converter currency.Converter
	taxes     tax.Engine
	opts      Options

	lines    []Line
	seq      int
	warnings []model.DegenerateRateWarning
}

// Snapshot is the serializable state of a balancer.
type Snapshot struct {
	StatementLineID string                        `json:"statement_line_id"`
	Seq             int                           `json:"seq"`
	Lines           []Line                        `json:"lines"`
	Warnings        []model.DegenerateRateWarning `json:"warnings,omitempty"`
}

// New creates a balancer seeded with the liquidity line and an auto_balance line covering the full amount.
func New(ctx context.Context, company model.Company, st model.StatementLine, converter currency.Converter, taxes tax.Engine, opts Options) (*Balancer, error) {
	b := &Balancer{company: company, statement: st, converter: converter, taxes: taxes, opts: opts}
	if err := b.Reset(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Restore rebuilds a balancer from a snapshot without recomputing anything.
func Restore(company model.Company, st model.StatementLine, converter currency.Converter, taxes tax.Engine, opts Options, snap Snapshot) *Balancer {
	return &Balancer{
		company:   company,
		statement: st,
		converter: converter,
		taxes:     taxes,
		opts:      opts,
		lines:     cloneLines(snap.Lines),
		seq:       snap.Seq,
		warnings:  append([]model.DegenerateRateWarning(nil), snap.Warnings...),
	}
}

// Snapshot returns a copy of the balancer state.
func (b *Balancer) Snapshot() Snapshot {
	return Snapshot{
		StatementLineID: b.statement.StatementLineID,
		Seq:             b.seq,
		Lines:           cloneLines(b.lines),
		Warnings:        append([]model.DegenerateRateWarning(nil), b.warnings...),
	}
}

// Reset returns the line set to its seeded state.
func (b *Balancer) Reset(ctx context.Context) error {
	b.seq = 0
	b.warnings = nil
	lines, err := b.recompute(ctx, []Line{b.liquidityLine()})
	if err != nil {
		return err
	}
	b.lines = lines
	return nil
}

// Lines returns a copy of the current line set, in position order.
func (b *Balancer) Lines() []Line {
	return cloneLines(b.lines)
}

// Warnings returns the degenerate conversions met while computing the current line set.
func (b *Balancer) Warnings() []model.DegenerateRateWarning {
	return append([]model.DegenerateRateWarning(nil), b.warnings...)
}

func (b *Balancer) Statement() model.StatementLine { return b.statement }

func (b *Balancer) Company() model.Company { return b.company }

// Residual returns the open amount carried by the auto_balance line, in company currency and in
// the line's own currency. Both are zero when the line set is closed.
func (b *Balancer) Residual() (balance, amountCurrency decimal.Decimal, cur string) {
	if auto, ok := b.autoBalance(); ok {
		return auto.Balance, auto.AmountCurrency, auto.Currency
	}
	return decimal.Zero, decimal.Zero, b.statement.TransactionCurrency()
}

// MatchedItems returns the matched item lines.
func (b *Balancer) MatchedItems() []Line {
	var out []Line
	for _, l := range b.lines {
		if _, ok := l.Flag.(model.MatchedItem); ok {
			out = append(out, l)
		}
	}
	return cloneLines(out)
}

// AddOption changes how an item is allocated when matched.
type AddOption func(*addConfig)

type addConfig struct {
	full bool
}

// FullAllocation matches the whole open amount of the item even when it exceeds the residual.
func FullAllocation() AddOption {
	return func(c *addConfig) { c.full = true }
}

// AddMatchedItem matches an open item. The item settles whatever the statement line still leaves open
// when that is less than its open amount, and its full open amount otherwise.
func (b *Balancer) AddMatchedItem(ctx context.Context, item model.OpenItem, opts ...AddOption) ([]Line, error) {
	for _, l := range b.lines {
		if m, ok := l.Flag.(model.MatchedItem); ok && m.Item.ItemID == item.ItemID {
			return nil, &model.DuplicateMatchError{OpenItemID: item.ItemID}
		}
	}

	cfg := addConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		allocated := item.AmountCurrency.Neg()
		if !cfg.full {
			// a payment covering the discounted amount settles the whole item
			floor := allocated.Add(b.openDiscount(item))
			if residual, ok := b.residualIn(ctx, item.Currency); ok &&
				residual.Sign() == allocated.Sign() && residual.Abs().LessThan(floor.Abs()) {
				allocated = residual
			}
		}
		line := Line{
			ID:             b.nextID(),
			Flag:           model.MatchedItem{Item: item},
			AccountID:      item.AccountID,
			PartnerID:      item.PartnerID,
			Currency:       item.Currency,
			AmountCurrency: allocated,
			Balance:        b.bookedBalance(item, allocated),
			Label:          itemLabel(item),
		}
		return append(inputs, line), nil
	})
}

// RemoveMatchedItem unmatches an open item together with the lines derived from it.
func (b *Balancer) RemoveMatchedItem(ctx context.Context, itemID string) ([]Line, error) {
	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		for i, l := range inputs {
			if m, ok := l.Flag.(model.MatchedItem); ok && m.Item.ItemID == itemID {
				return dropWithDerived(inputs, i), nil
			}
		}
		return nil, model.ErrLineNotFound
	})
}

// ManualLine describes a line entered by hand. Amounts are in Currency; an empty currency means the
// currency of the statement line transaction.
type ManualLine struct {
	AccountID      string
	PartnerID      string
	Label          string
	Currency       string
	AmountCurrency decimal.Decimal
	Taxes          []model.Tax
	SourceRuleID   string
	// Balance overrides the company-currency amount derived from AmountCurrency.
	Balance *decimal.Decimal
	// TaxIncluded treats the amount as the gross figure when taxes are set.
	TaxIncluded bool
}

// AddManualLine appends a manual line.
func (b *Balancer) AddManualLine(ctx context.Context, ml ManualLine) ([]Line, error) {
	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		line, err := b.newManualLine(ctx, ml)
		if err != nil {
			return nil, err
		}
		return append(inputs, line), nil
	})
}

// RemoveLine removes the line at index. Only matched items and manual lines can be removed.
func (b *Balancer) RemoveLine(ctx context.Context, index int) ([]Line, error) {
	target, err := b.lineAt(index)
	if err != nil {
		return nil, err
	}
	switch target.Flag.(type) {
	case model.MatchedItem, model.Manual:
	default:
		return nil, model.ErrLineNotEditable
	}
	return b.mutate(ctx, func(inputs []Line) ([]Line, error) {
		for i, l := range inputs {
			if l.ID == target.ID {
				return dropWithDerived(inputs, i), nil
			}
		}
		return nil, model.ErrLineNotFound
	})
}

// mutate applies fn to a copy of the input lines and recomputes the line set. On error the current
// line set is left untouched.
func (b *Balancer) mutate(ctx context.Context, fn func(inputs []Line) ([]Line, error)) ([]Line, error) {
	seq := b.seq
	warnings := b.warnings
	b.warnings = nil

	inputs, err := fn(b.inputs())
	if err == nil {
		var lines []Line
		lines, err = b.recompute(ctx, inputs)
		if err == nil {
			b.lines = lines
			return b.Lines(), nil
		}
	}
	b.seq = seq
	b.warnings = warnings
	return nil, err
}

// inputs returns the lines the derived ones are computed from.
func (b *Balancer) inputs() []Line {
	var out []Line
	for _, l := range b.lines {
		switch l.Flag.(type) {
		case model.Liquidity, model.MatchedItem, model.Manual:
			out = append(out, cloneLine(l))
		case model.ExchangeDiff, model.TaxLine, model.EarlyPayment:
			if l.ManuallyEdited {
				out = append(out, cloneLine(l))
			}
		}
	}
	return out
}

// recompute derives every computed line from the inputs: taxes first, then exchange differences,
// the early payment block and the auto_balance line last.
func (b *Balancer) recompute(ctx context.Context, inputs []Line) ([]Line, error) {
	sticky := map[string]Line{}
	var primary []Line
	for _, l := range inputs {
		switch l.Flag.(type) {
		case model.ExchangeDiff, model.TaxLine, model.EarlyPayment:
			sticky[l.ID] = l
		default:
			primary = append(primary, l)
		}
	}

	taxLines := make(map[string][]Line, len(primary))
	for i := range primary {
		if len(primary[i].Taxes) == 0 {
			primary[i].TaxMode = model.TaxModeNone
			primary[i].TaxTagIDs = nil
			continue
		}
		derived, err := b.computeTaxes(ctx, &primary[i])
		if err != nil {
			return nil, err
		}
		taxLines[primary[i].ID] = derived
	}

	var out []Line
	revalued := decimal.Zero
	for _, p := range primary {
		out = append(out, p)
		for _, t := range taxLines[p.ID] {
			out = append(out, pickSticky(sticky, t))
		}
		if _, ok := p.Flag.(model.MatchedItem); !ok {
			continue
		}
		diff, ok := b.exchangeDiff(ctx, p)
		if ok {
			diff = pickSticky(sticky, diff)
		} else {
			diff, ok = sticky[exchangeDiffID(p.ID)]
		}
		if ok {
			out = append(out, diff)
			revalued = revalued.Add(diff.Balance)
		}
	}
	block := b.earlyPaymentBlock(ctx, primary, taxLines, revalued)
	for _, l := range block {
		out = append(out, pickSticky(sticky, l))
	}

	if auto, ok := b.computeAutoBalance(out); ok {
		out = append(out, auto)
	}
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

func pickSticky(sticky map[string]Line, computed Line) Line {
	if kept, ok := sticky[computed.ID]; ok {
		return kept
	}
	return computed
}

func (b *Balancer) liquidityLine() Line {
	st := b.statement
	return Line{
		ID:             liquidityLineID,
		Flag:           model.Liquidity{},
		AccountID:      st.LiquidityAccountID,
		PartnerID:      st.PartnerID,
		Currency:       st.TransactionCurrency(),
		AmountCurrency: st.TransactionAmount(),
		Balance:        st.Amount,
		Label:          st.PaymentRef,
	}
}

func (b *Balancer) autoBalance() (Line, bool) {
	for _, l := range b.lines {
		if _, ok := l.Flag.(model.AutoBalance); ok {
			return l, true
		}
	}
	return Line{}, false
}

func (b *Balancer) lineAt(index int) (Line, error) {
	if index < 0 || index >= len(b.lines) {
		return Line{}, model.ErrLineNotFound
	}
	return b.lines[index], nil
}

func (b *Balancer) nextID() string {
	b.seq++
	return fmt.Sprintf("L%d", b.seq)
}

// bookedBalance is the company-currency value of an allocation at the rate the item was booked at.
func (b *Balancer) bookedBalance(item model.OpenItem, allocated decimal.Decimal) decimal.Decimal {
	if allocated.Equal(item.AmountCurrency.Neg()) {
		return item.Balance.Neg()
	}
	if item.AmountCurrency.IsZero() {
		return decimal.Zero
	}
	return currency.Round(item.Balance.Mul(allocated).Div(item.AmountCurrency), b.company.Currency)
}

// dropWithDerived removes inputs[i] and the edited derived lines that hang off it.
func dropWithDerived(inputs []Line, i int) []Line {
	id := inputs[i].ID
	out := make([]Line, 0, len(inputs))
	for j, l := range inputs {
		if j == i {
			continue
		}
		switch f := l.Flag.(type) {
		case model.ExchangeDiff:
			if f.SourceLineID == id {
				continue
			}
		case model.TaxLine:
			if f.BaseLineID == id {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

func itemLabel(item model.OpenItem) string {
	if item.Label != "" {
		return item.Label
	}
	return item.Reference
}

func cloneLine(l Line) Line {
	l.Taxes = append([]model.Tax(nil), l.Taxes...)
	l.TaxTagIDs = append([]string(nil), l.TaxTagIDs...)
	return l
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = cloneLine(l)
	}
	return out
}
