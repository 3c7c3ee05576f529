package bankrec

import (
	"context"
	"strings"
	"unicode"

	"github.com/jerry-enebeli/bankrec/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const partnerNameCandidates = 20

// NormalizeName folds case and accents and collapses whitespace, so "  Émile  DUPONT" and
// "emile dupont" compare equal.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// CreatePartner stores a partner together with its normalized name.
func (s *BankRec) CreatePartner(ctx context.Context, partner model.Partner) (model.Partner, error) {
	ctx, span := tracer.Start(ctx, "CreatePartner")
	defer span.End()

	partner.NormalizedName = NormalizeName(partner.Name)
	return s.datasource.CreatePartner(ctx, partner)
}

// AddPartnerBankAccount registers a bank account number for a partner. Numbers are compared sanitized.
func (s *BankRec) AddPartnerBankAccount(ctx context.Context, account model.PartnerBankAccount) (model.PartnerBankAccount, error) {
	ctx, span := tracer.Start(ctx, "AddPartnerBankAccount")
	defer span.End()

	partner, err := s.datasource.GetPartner(ctx, account.PartnerID)
	if err != nil {
		return model.PartnerBankAccount{}, err
	}
	account.CompanyID = partner.CompanyID
	account.SanitizedNumber = model.SanitizeAccountNumber(account.AccountNumber)
	return s.datasource.AddPartnerBankAccount(ctx, account)
}

// ResolvePartner finds the partner a statement line most likely belongs to. The line's own partner
// wins; then a bank account number registered to exactly one partner; then the counterparty name.
// A number registered to several partners is ambiguous and resolves to no partner.
// It returns nil when nothing matches.
func (s *BankRec) ResolvePartner(ctx context.Context, st model.StatementLine) (*model.Partner, error) {
	ctx, span := tracer.Start(ctx, "ResolvePartner")
	defer span.End()
	span.SetAttributes(attribute.String("statement_line.id", st.StatementLineID))

	if st.PartnerID != "" {
		return s.datasource.GetPartner(ctx, st.PartnerID)
	}

	if number := model.SanitizeAccountNumber(st.AccountNumber); number != "" {
		partners, err := s.datasource.FindPartnersByBankAccount(ctx, st.CompanyID, number)
		if err != nil {
			return nil, err
		}
		distinct := uniquePartners(partners)
		switch {
		case len(distinct) == 1:
			return &distinct[0], nil
		case len(distinct) > 1:
			logrus.WithFields(logrus.Fields{
				"statement_line_id": st.StatementLineID,
				"candidates":        len(distinct),
			}).Info("bank account number is shared by several partners")
			return nil, nil
		}
	}

	name := NormalizeName(st.PartnerName)
	if name == "" {
		return nil, nil
	}
	candidates, err := s.datasource.SearchPartnersByName(ctx, st.CompanyID, name, partnerNameCandidates)
	if err != nil {
		return nil, err
	}
	return pickByName(candidates, name), nil
}

// ResolveStatementLinePartner resolves and stores the partner of a statement line that has none.
func (s *BankRec) ResolveStatementLinePartner(ctx context.Context, statementLineID string) (*model.Partner, error) {
	st, err := s.datasource.GetStatementLine(ctx, statementLineID)
	if err != nil {
		return nil, err
	}
	partner, err := s.ResolvePartner(ctx, *st)
	if err != nil || partner == nil || st.PartnerID != "" {
		return partner, err
	}
	if err := s.datasource.SetStatementLinePartner(ctx, st.StatementLineID, partner.PartnerID); err != nil {
		return nil, err
	}
	return partner, nil
}

// pickByName prefers a partner whose name equals the text over one that merely contains it. Among
// equals, the first by normalized name then id wins.
func pickByName(candidates []model.Partner, name string) *model.Partner {
	var best *model.Partner
	for i := range candidates {
		c := &candidates[i]
		if NormalizeName(c.Name) == name {
			return c
		}
		if best == nil {
			best = c
		}
	}
	return best
}

func uniquePartners(partners []model.Partner) []model.Partner {
	seen := make(map[string]bool, len(partners))
	out := make([]model.Partner, 0, len(partners))
	for _, p := range partners {
		if seen[p.PartnerID] {
			continue
		}
		seen[p.PartnerID] = true
		out = append(out, p)
	}
	return out
}
