package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

// CreateAccount adds an account to a company's chart of accounts.
func (d Datasource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateAccount")
	defer span.End()

	if account.AccountID == "" {
		account.AccountID = model.GenerateUUIDWithSuffix("acc")
	}
	account.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO bankrec.accounts (account_id, company_id, code, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, account.AccountID, account.CompanyID, account.Code, account.Name, account.CreatedAt).Scan(&account.ID)
	if err != nil {
		return model.Account{}, mapError(err, "account")
	}
	return account, nil
}

// GetAccount retrieves an account by its id.
func (d Datasource) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetAccount")
	defer span.End()

	a := model.Account{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, account_id, company_id, code, name, created_at
		FROM bankrec.accounts
		WHERE account_id = $1
	`, id).Scan(&a.ID, &a.AccountID, &a.CompanyID, &a.Code, &a.Name, &a.CreatedAt)
	if err != nil {
		return nil, mapError(err, "account")
	}
	return &a, nil
}
