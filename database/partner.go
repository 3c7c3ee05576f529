package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

// CreatePartner stores a partner. NormalizedName must already be folded by the caller.
func (d Datasource) CreatePartner(ctx context.Context, partner model.Partner) (model.Partner, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreatePartner")
	defer span.End()

	if partner.PartnerID == "" {
		partner.PartnerID = model.GenerateUUIDWithSuffix("ptn")
	}
	partner.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO bankrec.partners (partner_id, company_id, name, normalized_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, partner.PartnerID, partner.CompanyID, partner.Name, partner.NormalizedName, partner.CreatedAt).Scan(&partner.ID)
	if err != nil {
		return model.Partner{}, mapError(err, "partner")
	}
	return partner, nil
}

func (d Datasource) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetPartner")
	defer span.End()

	p := model.Partner{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, partner_id, company_id, name, normalized_name, created_at
		FROM bankrec.partners
		WHERE partner_id = $1
	`, id).Scan(&p.ID, &p.PartnerID, &p.CompanyID, &p.Name, &p.NormalizedName, &p.CreatedAt)
	if err != nil {
		return nil, mapError(err, "partner")
	}
	return &p, nil
}

// AddPartnerBankAccount registers a bank account number for a partner. The same number may be
// registered for several partners, which makes it ambiguous for partner resolution.
func (d Datasource) AddPartnerBankAccount(ctx context.Context, account model.PartnerBankAccount) (model.PartnerBankAccount, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "AddPartnerBankAccount")
	defer span.End()

	if account.BankAccountID == "" {
		account.BankAccountID = model.GenerateUUIDWithSuffix("pba")
	}
	account.SanitizedNumber = model.SanitizeAccountNumber(account.AccountNumber)
	account.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO bankrec.partner_bank_accounts (
			bank_account_id, partner_id, company_id, account_number, sanitized_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		account.BankAccountID, account.PartnerID, account.CompanyID, account.AccountNumber,
		account.SanitizedNumber, account.CreatedAt,
	)
	if err != nil {
		return model.PartnerBankAccount{}, mapError(err, "partner bank account")
	}
	return account, nil
}

// FindPartnersByBankAccount returns every distinct partner that registered the sanitized number.
func (d Datasource) FindPartnersByBankAccount(ctx context.Context, companyID, sanitizedNumber string) ([]model.Partner, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "FindPartnersByBankAccount")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.partner_id, p.company_id, p.name, p.normalized_name, p.created_at
		FROM bankrec.partners p
		JOIN bankrec.partner_bank_accounts b ON b.partner_id = p.partner_id
		WHERE b.company_id = $1 AND b.sanitized_number = $2
		ORDER BY p.partner_id
	`, companyID, sanitizedNumber)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up bank account", err)
	}
	defer rows.Close()
	return scanPartners(rows)
}

// SearchPartnersByName returns partners whose normalized name contains normalizedName. Exact
// matches come first, then names in lexicographic order.
func (d Datasource) SearchPartnersByName(ctx context.Context, companyID, normalizedName string, limit int) ([]model.Partner, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "SearchPartnersByName")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, partner_id, company_id, name, normalized_name, created_at
		FROM bankrec.partners
		WHERE company_id = $1 AND position($2 in normalized_name) > 0
		ORDER BY normalized_name = $2 DESC, normalized_name, partner_id
		LIMIT $3
	`, companyID, normalizedName, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to search partners", err)
	}
	defer rows.Close()
	return scanPartners(rows)
}

func scanPartners(rows *sql.Rows) ([]model.Partner, error) {
	partners := []model.Partner{}
	for rows.Next() {
		p := model.Partner{}
		if err := rows.Scan(&p.ID, &p.PartnerID, &p.CompanyID, &p.Name, &p.NormalizedName, &p.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan partner data", err)
		}
		partners = append(partners, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over partners", err)
	}
	return partners, nil
}
