package bankrec

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func partner(id, name string) model.Partner {
	return model.Partner{PartnerID: id, CompanyID: "co_1", Name: name, NormalizedName: NormalizeName(name)}
}

func TestResolvePartner_BankAccountOwnedByOnePartner(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.AccountNumber = "014 474 8555"
	ds.On("FindPartnersByBankAccount", mock.Anything, "co_1", "0144748555").
		Return([]model.Partner{partner("ptn_1", "Azure Interior")}, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ptn_1", p.PartnerID)
	ds.AssertNotCalled(t, "SearchPartnersByName", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePartner_BankAccountSharedIsAmbiguous(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.AccountNumber = "0144748555"
	st.PartnerName = "Azure Interior"
	ds.On("FindPartnersByBankAccount", mock.Anything, "co_1", "0144748555").
		Return([]model.Partner{partner("ptn_1", "Azure Interior"), partner("ptn_2", "Deco Addict")}, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	assert.Nil(t, p)
	ds.AssertNotCalled(t, "SearchPartnersByName", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePartner_ByNamePrefersExactMatch(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.PartnerName = "DÉLÉGATION"
	ds.On("SearchPartnersByName", mock.Anything, "co_1", "delegation", partnerNameCandidates).
		Return([]model.Partner{
			partner("ptn_1", "Delegation Nord"),
			partner("ptn_2", "Délégation"),
		}, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ptn_2", p.PartnerID)
}

func TestResolvePartner_ByNameFallsBackToFirstCandidate(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.PartnerName = "deco"
	ds.On("SearchPartnersByName", mock.Anything, "co_1", "deco", partnerNameCandidates).
		Return([]model.Partner{partner("ptn_3", "Deco Addict"), partner("ptn_4", "Deco Studio")}, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ptn_3", p.PartnerID)
}

func TestResolvePartner_UnknownAccountFallsThroughToName(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.AccountNumber = "BE68 5390 0754 7034"
	st.PartnerName = gofakeit.Name()
	ds.On("FindPartnersByBankAccount", mock.Anything, "co_1", "BE68539007547034").Return([]model.Partner{}, nil)
	ds.On("SearchPartnersByName", mock.Anything, "co_1", NormalizeName(st.PartnerName), partnerNameCandidates).
		Return([]model.Partner{}, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	assert.Nil(t, p)
	ds.AssertExpectations(t)
}

func TestResolvePartner_LinePartnerWins(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.PartnerID = "ptn_9"
	existing := partner("ptn_9", "Gemini Furniture")
	ds.On("GetPartner", mock.Anything, "ptn_9").Return(&existing, nil)

	p, err := svc.ResolvePartner(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "ptn_9", p.PartnerID)
}

func TestResolveStatementLinePartner_StoresResolvedPartner(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "100")
	st.AccountNumber = "0144748555"
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)
	ds.On("FindPartnersByBankAccount", mock.Anything, "co_1", "0144748555").
		Return([]model.Partner{partner("ptn_1", "Azure Interior")}, nil)
	ds.On("SetStatementLinePartner", mock.Anything, "stl_1", "ptn_1").Return(nil)

	p, err := svc.ResolveStatementLinePartner(context.Background(), "stl_1")
	require.NoError(t, err)
	assert.Equal(t, "ptn_1", p.PartnerID)
	ds.AssertExpectations(t)
}

func TestCreatePartner_StoresNormalizedName(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	ds.On("CreatePartner", mock.Anything, mock.MatchedBy(func(p model.Partner) bool {
		return p.NormalizedName == "societe generale"
	})).Return(model.Partner{PartnerID: "ptn_1", Name: "Société Générale"}, nil)

	p, err := svc.CreatePartner(context.Background(), model.Partner{CompanyID: "co_1", Name: "Société  Générale"})
	require.NoError(t, err)
	assert.Equal(t, "ptn_1", p.PartnerID)
}

func TestAddPartnerBankAccount_SanitizesNumber(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	owner := partner("ptn_1", "Azure Interior")
	ds.On("GetPartner", mock.Anything, "ptn_1").Return(&owner, nil)
	ds.On("AddPartnerBankAccount", mock.Anything, mock.MatchedBy(func(a model.PartnerBankAccount) bool {
		return a.SanitizedNumber == "0144748555" && a.CompanyID == "co_1"
	})).Return(model.PartnerBankAccount{BankAccountID: "pba_1"}, nil)

	acc, err := svc.AddPartnerBankAccount(context.Background(), model.PartnerBankAccount{PartnerID: "ptn_1", AccountNumber: "014-474-8555"})
	require.NoError(t, err)
	assert.Equal(t, "pba_1", acc.BankAccountID)
}
