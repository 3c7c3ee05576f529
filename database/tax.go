package database

import (
	"context"
	"encoding/json"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

func (d Datasource) CreateTax(ctx context.Context, t model.Tax) (model.Tax, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateTax")
	defer span.End()

	if t.TaxID == "" {
		t.TaxID = model.GenerateUUIDWithSuffix("tax")
	}
	invoice, err := json.Marshal(t.InvoiceRepartition)
	if err != nil {
		return model.Tax{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal repartition", err)
	}
	refund := t.RefundRepartition
	if refund == nil {
		refund = []model.TaxRepartition{}
	}
	refundJSON, err := json.Marshal(refund)
	if err != nil {
		return model.Tax{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal repartition", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO bankrec.taxes (
			tax_id, company_id, name, amount, type_tax_use, cash_basis,
			cash_basis_transition_account_id, invoice_repartition, refund_repartition
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.TaxID, t.CompanyID, t.Name, t.Amount, t.TypeTaxUse, t.CashBasis,
		t.CashBasisTransitionAccountID, invoice, refundJSON,
	)
	if err != nil {
		return model.Tax{}, mapError(err, "tax")
	}
	return t, nil
}

// GetTaxes loads tax definitions, preserving the order of ids. Unknown ids yield a NOT_FOUND error.
func (d Datasource) GetTaxes(ctx context.Context, ids []string) ([]model.Tax, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetTaxes")
	defer span.End()

	if len(ids) == 0 {
		return []model.Tax{}, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT tax_id, company_id, name, amount, type_tax_use, cash_basis,
			cash_basis_transition_account_id, invoice_repartition, refund_repartition
		FROM bankrec.taxes
		WHERE tax_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve taxes", err)
	}
	defer rows.Close()

	byID := make(map[string]model.Tax, len(ids))
	for rows.Next() {
		t := model.Tax{}
		var invoice, refund []byte
		err := rows.Scan(&t.TaxID, &t.CompanyID, &t.Name, &t.Amount, &t.TypeTaxUse, &t.CashBasis,
			&t.CashBasisTransitionAccountID, &invoice, &refund)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan tax", err)
		}
		if err := json.Unmarshal(invoice, &t.InvoiceRepartition); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal repartition", err)
		}
		if err := json.Unmarshal(refund, &t.RefundRepartition); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal repartition", err)
		}
		byID[t.TaxID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over taxes", err)
	}

	taxes := make([]model.Tax, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "tax "+id+" not found", nil)
		}
		taxes = append(taxes, t)
	}
	return taxes, nil
}
