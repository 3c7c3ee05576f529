package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

// UpsertCurrencyRate stores the rate of a currency for a day, replacing any rate already set.
func (d Datasource) UpsertCurrencyRate(ctx context.Context, rate model.CurrencyRate) error {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "UpsertCurrencyRate")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO bankrec.currency_rates (company_id, currency, rate_date, rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, currency, rate_date) DO UPDATE SET rate = EXCLUDED.rate
	`, rate.CompanyID, rate.Currency, rate.RateDate, rate.Rate)
	return mapError(err, "currency rate")
}

// GetRate returns the latest rate of currency on or before date.
func (d Datasource) GetRate(ctx context.Context, companyID, currency string, date time.Time) (*model.CurrencyRate, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetRate")
	defer span.End()

	r := model.CurrencyRate{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT company_id, currency, rate_date, rate
		FROM bankrec.currency_rates
		WHERE company_id = $1 AND currency = $2 AND rate_date <= $3
		ORDER BY rate_date DESC
		LIMIT 1
	`, companyID, currency, date).Scan(&r.CompanyID, &r.Currency, &r.RateDate, &r.Rate)
	if err != nil {
		return nil, mapError(err, "currency rate")
	}
	return &r, nil
}
