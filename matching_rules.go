package bankrec

import (
	"context"
	"regexp"
	"strings"

	"github.com/jerry-enebeli/bankrec/balancer"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel/attribute"
)

const invoiceCandidateLimit = 200

// unattendedRuleTypes are the rule types the scheduler is allowed to apply.
var unattendedRuleTypes = []model.RuleType{model.RuleInvoiceMatching, model.RuleWriteoffSuggestion}

// Application is the outcome of running the rule engine on a reconciliation.
type Application struct {
	Model *model.ReconcileModel
	// AllowAuto is set when the applied model may be validated without a user looking at it.
	AllowAuto bool
}

// CreateReconcileModel validates and stores a reconcile model.
func (s *BankRec) CreateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error) {
	ctx, span := tracer.Start(ctx, "CreateReconcileModel")
	defer span.End()

	if err := m.Validate(); err != nil {
		return model.ReconcileModel{}, invalidInput(err)
	}
	return s.datasource.CreateReconcileModel(ctx, m)
}

func (s *BankRec) GetReconcileModel(ctx context.Context, id string) (*model.ReconcileModel, error) {
	ctx, span := tracer.Start(ctx, "GetReconcileModel")
	defer span.End()
	return s.datasource.GetReconcileModel(ctx, id)
}

func (s *BankRec) ListReconcileModels(ctx context.Context, companyID string) ([]model.ReconcileModel, error) {
	return s.datasource.ListReconcileModels(ctx, companyID, false)
}

// UpdateReconcileModel replaces a stored model. The company a model belongs to cannot change.
func (s *BankRec) UpdateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error) {
	ctx, span := tracer.Start(ctx, "UpdateReconcileModel")
	defer span.End()

	existing, err := s.datasource.GetReconcileModel(ctx, m.ModelID)
	if err != nil {
		return model.ReconcileModel{}, err
	}
	m.CompanyID = existing.CompanyID
	if err := m.Validate(); err != nil {
		return model.ReconcileModel{}, invalidInput(err)
	}
	return s.datasource.UpdateReconcileModel(ctx, m)
}

func (s *BankRec) DeleteReconcileModel(ctx context.Context, id string) error {
	return s.datasource.DeleteReconcileModel(ctx, id)
}

// ApplyMatchingRules tries the company's active models in sequence order and applies the first one
// whose conditions the statement line meets. Only models of the given rule types are considered;
// none means invoice_matching and writeoff_suggestion. A nil Model means no model applied.
func (s *BankRec) ApplyMatchingRules(ctx context.Context, r *Reconciliation, types ...model.RuleType) (Application, error) {
	ctx, span := tracer.Start(ctx, "ApplyMatchingRules")
	defer span.End()

	if len(types) == 0 {
		types = unattendedRuleTypes
	}
	st := r.StatementLine()
	models, err := s.datasource.ListReconcileModels(ctx, st.CompanyID, true)
	if err != nil {
		return Application{}, err
	}
	return s.applyModels(ctx, r, filterModels(models, types))
}

func (s *BankRec) applyModels(ctx context.Context, r *Reconciliation, models []model.ReconcileModel) (Application, error) {
	if len(models) == 0 {
		return Application{}, nil
	}
	st := r.StatementLine()
	partnerID := st.PartnerID
	if partnerID == "" {
		partner, err := s.ResolvePartner(ctx, st)
		if err != nil {
			return Application{}, errors.Wrap(err, "resolving partner")
		}
		if partner != nil {
			partnerID = partner.PartnerID
		}
	}

	for i := range models {
		m := models[i]
		if !matchesConditions(m, st, partnerID) {
			continue
		}
		var (
			applied   bool
			allowAuto bool
			err       error
		)
		switch m.RuleType {
		case model.RuleInvoiceMatching:
			applied, allowAuto, err = s.applyInvoiceMatching(ctx, r, m, partnerID)
		default:
			applied, err = s.applyWriteoff(ctx, r, m)
			allowAuto = applied
		}
		if err != nil {
			return Application{}, errors.Wrapf(err, "applying reconcile model %s", m.ModelID)
		}
		if !applied {
			continue
		}
		r.appliedModelID = m.ModelID
		logApplied(m)
		return Application{
			Model:     &m,
			AllowAuto: allowAuto && m.AllowsUnattended() && !hasAutoBalance(r.Lines()),
		}, nil
	}
	return Application{}, nil
}

func logApplied(m model.ReconcileModel) {
	logrus.WithFields(logrus.Fields{"model_id": m.ModelID, "rule_type": m.RuleType}).Debug("reconcile model applied")
}

// applyInvoiceMatching matches the open items the statement line pays. Items whose reference shows up
// in the line's label or reference win; otherwise a single item for exactly the statement amount.
// A difference within the payment tolerance is written off and the items settled in full.
func (s *BankRec) applyInvoiceMatching(ctx context.Context, r *Reconciliation, m model.ReconcileModel, partnerID string) (applied, allowAuto bool, err error) {
	st := r.StatementLine()
	cutoff := st.Date
	items, err := s.datasource.ListOpenItems(ctx, model.OpenItemQuery{
		CompanyID:  st.CompanyID,
		PartnerID:  partnerID,
		Currency:   st.TransactionCurrency(),
		DateCutoff: &cutoff,
		Limit:      invoiceCandidateLimit,
	})
	if err != nil {
		return false, false, err
	}
	selected := selectInvoices(items, st)
	if len(selected) == 0 {
		return false, false, nil
	}

	amount := st.TransactionAmount()
	total := decimal.Zero
	for _, item := range selected {
		total = total.Add(item.AmountCurrency)
	}
	residual := amount.Sub(total)
	writeOff := !residual.IsZero() && m.PaymentTolerance.Allows(residual, total)

	var opts []balancer.AddOption
	if writeOff {
		opts = append(opts, balancer.FullAllocation())
	}
	for _, item := range selected {
		if _, err := r.AddMatchedItem(ctx, item, opts...); err != nil {
			return false, false, err
		}
	}
	if writeOff {
		label := m.PaymentTolerance.Label
		if label == "" {
			label = m.Name
		}
		_, err := r.AddManualLine(ctx, balancer.ManualLine{
			AccountID:      m.PaymentTolerance.AccountID,
			PartnerID:      partnerID,
			Label:          label,
			Currency:       st.TransactionCurrency(),
			AmountCurrency: residual.Neg(),
			SourceRuleID:   m.ModelID,
		})
		if err != nil {
			return false, false, err
		}
	}
	// an early payment block closes the gap left by the discount
	return true, residual.IsZero() || writeOff || hasKind(r.Lines(), model.FlagEarlyPayment), nil
}

func (s *BankRec) applyWriteoff(ctx context.Context, r *Reconciliation, m model.ReconcileModel) (bool, error) {
	if err := s.loadModelTaxes(ctx, &m); err != nil {
		return false, err
	}
	if _, err := r.SelectReconcileModel(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BankRec) loadModelTaxes(ctx context.Context, m *model.ReconcileModel) error {
	for i := range m.Lines {
		if len(m.Lines[i].TaxIDs) == 0 {
			continue
		}
		taxes, err := s.datasource.GetTaxes(ctx, m.Lines[i].TaxIDs)
		if err != nil {
			return err
		}
		m.Lines[i].Taxes = taxes
	}
	return nil
}

// SelectReconcileModelByID applies a write-off model chosen by the user to a reconciliation.
func (s *BankRec) SelectReconcileModelByID(ctx context.Context, r *Reconciliation, modelID string) ([]model.ReconciliationLine, error) {
	ctx, span := tracer.Start(ctx, "SelectReconcileModelByID")
	defer span.End()
	span.SetAttributes(attribute.String("model.id", modelID))

	m, err := s.datasource.GetReconcileModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if m.CompanyID != r.StatementLine().CompanyID {
		return nil, &model.ValidationError{Reason: "reconcile model belongs to another company"}
	}
	if m.RuleType == model.RuleInvoiceMatching {
		return nil, &model.ValidationError{Reason: "invoice matching models cannot be selected by hand"}
	}
	if err := s.loadModelTaxes(ctx, m); err != nil {
		return nil, err
	}
	return r.SelectReconcileModel(ctx, *m)
}

// selectInvoices keeps items on the same side as the statement line, then picks by reference or,
// failing that, the one item whose open amount equals the statement amount.
func selectInvoices(items []model.OpenItem, st model.StatementLine) []model.OpenItem {
	amount := st.TransactionAmount()
	text := strings.ToLower(st.PaymentRef + " " + st.Narration)

	var byReference, byAmount []model.OpenItem
	for _, item := range items {
		if item.AmountCurrency.Sign() != amount.Sign() {
			continue
		}
		if ref := strings.ToLower(strings.TrimSpace(item.Reference)); ref != "" && strings.Contains(text, ref) {
			byReference = append(byReference, item)
			continue
		}
		if item.AmountCurrency.Equal(amount) {
			byAmount = append(byAmount, item)
		}
	}
	if len(byReference) > 0 {
		return byReference
	}
	if len(byAmount) == 1 {
		return byAmount
	}
	return nil
}

func filterModels(models []model.ReconcileModel, types []model.RuleType) []model.ReconcileModel {
	out := make([]model.ReconcileModel, 0, len(models))
	for _, m := range models {
		for _, t := range types {
			if m.RuleType == t {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func hasAutoBalance(lines []model.ReconciliationLine) bool {
	return hasKind(lines, model.FlagAutoBalance)
}

func hasKind(lines []model.ReconciliationLine, kind model.FlagKind) bool {
	for _, l := range lines {
		if l.Kind() == kind {
			return true
		}
	}
	return false
}

func matchesConditions(m model.ReconcileModel, st model.StatementLine, partnerID string) bool {
	for _, c := range m.Conditions {
		if !matchesCondition(c, st, partnerID) {
			return false
		}
	}
	return true
}

func matchesCondition(c model.MatchCondition, st model.StatementLine, partnerID string) bool {
	switch c.Field {
	case model.FieldLabel:
		return matchesText(c, st.PaymentRef)
	case model.FieldReference:
		return matchesText(c, st.Narration)
	case model.FieldJournal:
		return matchesValue(c, st.JournalID)
	case model.FieldPartner:
		return matchesValue(c, partnerID)
	case model.FieldAmount:
		return c.MatchesAmount(st.TransactionAmount())
	case model.FieldNature:
		switch c.Value {
		case model.NatureReceived:
			return st.Amount.IsPositive()
		case model.NaturePaid:
			return st.Amount.IsNegative()
		case model.NatureBoth, "":
			return true
		}
	}
	return false
}

func matchesValue(c model.MatchCondition, value string) bool {
	if value == "" {
		return false
	}
	switch c.Operator {
	case model.OperatorEquals:
		return c.Value == value
	case model.OperatorIn:
		for _, v := range c.Values {
			if v == value {
				return true
			}
		}
	}
	return false
}

func matchesText(c model.MatchCondition, text string) bool {
	switch c.Operator {
	case model.OperatorContains:
		return text != "" && partialMatch(c.Value, text, c.AllowableDrift)
	case model.OperatorNotContains:
		return !strings.Contains(strings.ToLower(text), strings.ToLower(c.Value))
	case model.OperatorEquals:
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(c.Value))
	case model.OperatorRegex:
		re, err := regexp.Compile("(?i)" + c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

// partialMatch reports whether text contains needle, or comes within allowableDrift percent of it
// by Levenshtein distance.
func partialMatch(needle, text string, allowableDrift float64) bool {
	needle = strings.ToLower(needle)
	text = strings.ToLower(text)

	if strings.Contains(text, needle) {
		return true
	}
	if allowableDrift <= 0 {
		return false
	}

	distance := levenshtein.DistanceForStrings([]rune(needle), []rune(text), levenshtein.DefaultOptions)
	maxLength := float64(max(len(needle), len(text)))
	maxAllowedDistance := int(maxLength * (allowableDrift / 100))

	return distance <= maxAllowedDistance
}
