package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

func (d Datasource) CreateCompany(ctx context.Context, company model.Company) (model.Company, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateCompany")
	defer span.End()

	if company.CompanyID == "" {
		company.CompanyID = model.GenerateUUIDWithSuffix("cmp")
	}
	if company.EarlyPayDiscountComputation == "" {
		company.EarlyPayDiscountComputation = model.EarlyPayDiscountIncluded
	}
	company.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO bankrec.companies (
			company_id, name, currency, suspense_account_id, income_exchange_account_id,
			expense_exchange_account_id, early_pay_discount_loss_account_id,
			early_pay_discount_gain_account_id, early_pay_discount_computation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		company.CompanyID, company.Name, company.Currency, company.SuspenseAccountID,
		company.IncomeExchangeAccountID, company.ExpenseExchangeAccountID,
		company.EarlyPayDiscountLossAccount, company.EarlyPayDiscountGainAccount,
		company.EarlyPayDiscountComputation, company.CreatedAt,
	)
	if err != nil {
		return model.Company{}, mapError(err, "company")
	}
	return company, nil
}

func (d Datasource) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetCompany")
	defer span.End()

	c := model.Company{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT company_id, name, currency, suspense_account_id, income_exchange_account_id,
			expense_exchange_account_id, early_pay_discount_loss_account_id,
			early_pay_discount_gain_account_id, early_pay_discount_computation, created_at
		FROM bankrec.companies
		WHERE company_id = $1
	`, id).Scan(
		&c.CompanyID, &c.Name, &c.Currency, &c.SuspenseAccountID, &c.IncomeExchangeAccountID,
		&c.ExpenseExchangeAccountID, &c.EarlyPayDiscountLossAccount,
		&c.EarlyPayDiscountGainAccount, &c.EarlyPayDiscountComputation, &c.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, "company")
	}
	return &c, nil
}
