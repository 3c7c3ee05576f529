package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/lib/pq"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
)

const statementLineColumns = `id, statement_line_id, company_id, journal_id, liquidity_account_id, date, currency,
	amount, foreign_currency, amount_currency, partner_id, partner_name, account_number, payment_ref,
	narration, is_reconciled, last_auto_check, created_at`

func (d Datasource) CreateStatementLine(ctx context.Context, line model.StatementLine) (model.StatementLine, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateStatementLine")
	defer span.End()

	if line.StatementLineID == "" {
		line.StatementLineID = model.GenerateUUIDWithSuffix("stl")
	}
	line.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO bankrec.statement_lines (
			statement_line_id, company_id, journal_id, liquidity_account_id, date, currency, amount,
			foreign_currency, amount_currency, partner_id, partner_name, account_number, payment_ref,
			narration, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		line.StatementLineID, line.CompanyID, line.JournalID, line.LiquidityAccountID, line.Date,
		line.Currency, line.Amount, line.ForeignCurrency, line.AmountCurrency, line.PartnerID,
		line.PartnerName, line.AccountNumber, line.PaymentRef, line.Narration, line.CreatedAt,
	).Scan(&line.ID)
	if err != nil {
		return model.StatementLine{}, mapError(err, "statement line")
	}
	return line, nil
}

func (d Datasource) GetStatementLine(ctx context.Context, id string) (*model.StatementLine, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetStatementLine")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+statementLineColumns+`
		FROM bankrec.statement_lines
		WHERE statement_line_id = $1`, id)
	line, err := scanStatementLine(row)
	if err != nil {
		return nil, mapError(err, "statement line")
	}
	return line, nil
}

// GetAutoReconcileCandidates lists unreconciled statement lines dated on or after since in the given
// companies. Lines never checked by the scheduler come first, then the longest-stale ones; ties are
// broken by identity.
func (d Datasource) GetAutoReconcileCandidates(ctx context.Context, since time.Time, companyIDs []string, limit int) ([]model.StatementLine, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetAutoReconcileCandidates")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `SELECT `+statementLineColumns+`
		FROM bankrec.statement_lines
		WHERE is_reconciled = FALSE AND date >= $1 AND company_id = ANY($2)
		ORDER BY last_auto_check ASC NULLS FIRST, id ASC
		LIMIT $3`, since, pq.Array(companyIDs), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve statement lines", err)
	}
	defer rows.Close()

	lines := []model.StatementLine{}
	for rows.Next() {
		line, err := scanStatementLine(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan statement line", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over statement lines", err)
	}
	return lines, nil
}

// ClaimStatementLine stamps last_auto_check with now, provided it still holds previous. It reports
// false when another run touched the line first.
func (d Datasource) ClaimStatementLine(ctx context.Context, id int64, previous *time.Time, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ClaimStatementLine")
	defer span.End()

	prev := sql.NullTime{}
	if previous != nil {
		prev = sql.NullTime{Time: *previous, Valid: true}
	}
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bankrec.statement_lines
		SET last_auto_check = $3
		WHERE id = $1 AND last_auto_check IS NOT DISTINCT FROM $2
	`, id, prev, now)
	if err != nil {
		return false, mapError(err, "statement line")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim statement line", err)
	}
	return n == 1, nil
}

// SetStatementLinePartner records the partner resolved for a statement line.
func (d Datasource) SetStatementLinePartner(ctx context.Context, id, partnerID string) error {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "SetStatementLinePartner")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bankrec.statement_lines SET partner_id = $2 WHERE statement_line_id = $1
	`, id, partnerID)
	if err != nil {
		return mapError(err, "statement line")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "statement line not found", nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStatementLine(row rowScanner) (*model.StatementLine, error) {
	l := model.StatementLine{}
	var lastCheck sql.NullTime
	err := row.Scan(
		&l.ID, &l.StatementLineID, &l.CompanyID, &l.JournalID, &l.LiquidityAccountID, &l.Date,
		&l.Currency, &l.Amount, &l.ForeignCurrency, &l.AmountCurrency, &l.PartnerID, &l.PartnerName,
		&l.AccountNumber, &l.PaymentRef, &l.Narration, &l.IsReconciled, &lastCheck, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastCheck.Valid {
		l.LastAutoCheck = ptr.Time(lastCheck.Time)
	}
	return &l, nil
}
