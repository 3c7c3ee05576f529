package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

const openItemColumns = `id, item_id, company_id, partner_id, account_id, currency, amount_currency, balance,
	original_amount_currency, original_balance, date, reference, label, discount_term, reconciled, created_at`

// CreateOpenItem stores a receivable or payable entry. The open residual starts at the original amounts
// unless the caller already set it.
func (d Datasource) CreateOpenItem(ctx context.Context, item model.OpenItem) (model.OpenItem, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateOpenItem")
	defer span.End()

	if item.ItemID == "" {
		item.ItemID = model.GenerateUUIDWithSuffix("itm")
	}
	if item.AmountCurrency.IsZero() && item.Balance.IsZero() {
		item.AmountCurrency = item.OriginalAmountCurrency
		item.Balance = item.OriginalBalance
	}
	item.CreatedAt = time.Now()

	var term []byte
	if item.DiscountTerm != nil {
		var err error
		term, err = json.Marshal(item.DiscountTerm)
		if err != nil {
			return model.OpenItem{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal discount term", err)
		}
	}

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO bankrec.open_items (
			item_id, company_id, partner_id, account_id, currency, amount_currency, balance,
			original_amount_currency, original_balance, date, reference, label, discount_term, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		item.ItemID, item.CompanyID, item.PartnerID, item.AccountID, item.Currency, item.AmountCurrency,
		item.Balance, item.OriginalAmountCurrency, item.OriginalBalance, item.Date, item.Reference,
		item.Label, nullableJSON(term), item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return model.OpenItem{}, mapError(err, "open item")
	}
	return item, nil
}

func (d Datasource) GetOpenItem(ctx context.Context, id string) (*model.OpenItem, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetOpenItem")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+openItemColumns+`
		FROM bankrec.open_items
		WHERE item_id = $1`, id)
	item, err := scanOpenItem(row)
	if err != nil {
		return nil, mapError(err, "open item")
	}
	return item, nil
}

// ListOpenItems queries unreconciled items, oldest first. Empty query fields are not applied.
func (d Datasource) ListOpenItems(ctx context.Context, query model.OpenItemQuery) ([]model.OpenItem, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ListOpenItems")
	defer span.End()

	where := []string{"reconciled = FALSE", "company_id = $1"}
	args := []interface{}{query.CompanyID}
	if query.PartnerID != "" {
		args = append(args, query.PartnerID)
		where = append(where, fmt.Sprintf("partner_id = $%d", len(args)))
	}
	if query.Currency != "" {
		args = append(args, query.Currency)
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}
	if query.DateCutoff != nil {
		args = append(args, *query.DateCutoff)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := d.Conn.QueryContext(ctx, `SELECT `+openItemColumns+`
		FROM bankrec.open_items
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date, id
		LIMIT `+fmt.Sprintf("$%d", len(args)), args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open items", err)
	}
	defer rows.Close()

	items := []model.OpenItem{}
	for rows.Next() {
		item, err := scanOpenItem(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan open item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over open items", err)
	}
	return items, nil
}

func scanOpenItem(row rowScanner) (*model.OpenItem, error) {
	item := model.OpenItem{}
	var term []byte
	err := row.Scan(
		&item.ID, &item.ItemID, &item.CompanyID, &item.PartnerID, &item.AccountID, &item.Currency,
		&item.AmountCurrency, &item.Balance, &item.OriginalAmountCurrency, &item.OriginalBalance,
		&item.Date, &item.Reference, &item.Label, &term, &item.Reconciled, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(term) > 0 {
		item.DiscountTerm = &model.DiscountTerm{}
		if err := json.Unmarshal(term, item.DiscountTerm); err != nil {
			return nil, err
		}
	}
	return &item, nil
}
