package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCurrencyRate(t *testing.T) {
	ds, mock := newMockDatasource(t)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("ON CONFLICT \\(company_id, currency, rate_date\\) DO UPDATE").
		WithArgs("cmp_1", "EUR", day, "0.9").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.UpsertCurrencyRate(context.Background(), model.CurrencyRate{
		CompanyID: "cmp_1", Currency: "EUR", RateDate: day, Rate: decimal.RequireFromString("0.9"),
	})
	assert.NoError(t, err)
}

func TestGetRate_LatestOnOrBefore(t *testing.T) {
	ds, mock := newMockDatasource(t)

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`rate_date <= \$3 ORDER BY rate_date DESC LIMIT 1`).
		WithArgs("cmp_1", "EUR", day).
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "currency", "rate_date", "rate"}).
			AddRow("cmp_1", "EUR", day.AddDate(0, 0, -4), "0.9"))

	rate, err := ds.GetRate(context.Background(), "cmp_1", "EUR", day)
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("0.9")))

	mock.ExpectQuery("FROM bankrec.currency_rates").
		WithArgs("cmp_1", "JPY", day).
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "currency", "rate_date", "rate"}))
	_, err = ds.GetRate(context.Background(), "cmp_1", "JPY", day)
	assert.True(t, apierror.IsNotFound(err))
}
