package bankrec

import (
	"context"
	"testing"
	"time"

	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func assertInvalidInput(t *testing.T, err error) {
	t.Helper()
	var apiErr apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestCreateCompany_DefaultsDiscountComputation(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	ds.On("CreateCompany", mock.Anything, mock.MatchedBy(func(c model.Company) bool {
		return c.EarlyPayDiscountComputation == model.EarlyPayDiscountIncluded
	})).Return(testCompany(), nil)

	_, err := svc.CreateCompany(context.Background(), model.Company{Name: "Acme", Currency: "USD"})
	require.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestCreateCompany_Invalid(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)

	_, err := svc.CreateCompany(context.Background(), model.Company{Name: "Acme", Currency: "DOLLARS"})
	assertInvalidInput(t, err)
	ds.AssertNotCalled(t, "CreateCompany", mock.Anything, mock.Anything)
}

func TestCreateStatementLine_CopiesAmountWithoutForeignCurrency(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "75")
	st.AmountCurrency = d("80")
	st.LastAutoCheck = &testNow
	ds.On("CreateStatementLine", mock.Anything, mock.MatchedBy(func(l model.StatementLine) bool {
		return l.AmountCurrency.Equal(d("75")) && l.LastAutoCheck == nil
	})).Return(st, nil)

	_, err := svc.CreateStatementLine(context.Background(), st)
	require.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestCreateStatementLine_Invalid(t *testing.T) {
	svc, _, _ := newTestBankRec(t)
	st := testStatement(1, "0")
	st.JournalID = ""

	_, err := svc.CreateStatementLine(context.Background(), st)
	assertInvalidInput(t, err)
}

func TestCreateOpenItem_SignMismatch(t *testing.T) {
	svc, _, _ := newTestBankRec(t)
	item := testOpenItem("itm_1", "100")
	item.Balance = d("-20")

	_, err := svc.CreateOpenItem(context.Background(), item)
	assertInvalidInput(t, err)
}

func TestUpsertCurrencyRate_DropsCachedRate(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	rate := model.CurrencyRate{CompanyID: "co_1", Currency: "EUR", RateDate: stDate, Rate: d("0.9")}
	ds.On("UpsertCurrencyRate", mock.Anything, rate).Return(nil)

	key := currency.RateCacheKey("co_1", "EUR", stDate)
	require.NoError(t, svc.cache.Set(ctx, key, "0.8", time.Hour))

	require.NoError(t, svc.UpsertCurrencyRate(ctx, rate))
	var cached string
	assert.Error(t, svc.cache.Get(ctx, key, &cached))
}

func TestUpsertCurrencyRate_RejectsNonPositive(t *testing.T) {
	svc, _, _ := newTestBankRec(t)

	err := svc.UpsertCurrencyRate(context.Background(), model.CurrencyRate{CompanyID: "co_1", Currency: "EUR", RateDate: stDate, Rate: d("0")})
	assertInvalidInput(t, err)
}

func TestListAutoReconcileRuns_DefaultLimit(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	ds.On("ListAutoReconcileRuns", mock.Anything, 20).Return([]model.AutoReconcileRun{{RunID: "run_1"}}, nil)

	runs, err := svc.ListAutoReconcileRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
