package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

// JournalTx posts one validated reconciliation. Nothing is visible to other connections until Commit;
// any error leaves the caller responsible for calling Rollback.
type JournalTx interface {
	PostEntry(ctx context.Context, entry model.JournalEntry) (string, error)
	SettleOpenItem(ctx context.Context, link model.ReconciliationLink) error
	MarkStatementReconciled(ctx context.Context, statementLineID string) error
	Commit() error
	Rollback() error
}

type journalTx struct {
	tx *sql.Tx
}

// BeginPosting opens the transaction a reconciliation is posted in.
func (d Datasource) BeginPosting(ctx context.Context) (JournalTx, error) {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin posting", err)
	}
	return &journalTx{tx: tx}, nil
}

// PostEntry writes the journal entry and one journal item per reconciliation line.
func (j *journalTx) PostEntry(ctx context.Context, entry model.JournalEntry) (string, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "PostEntry")
	defer span.End()

	if entry.EntryID == "" {
		entry.EntryID = model.GenerateUUIDWithSuffix("jrn")
	}
	entry.CreatedAt = time.Now()

	_, err := j.tx.ExecContext(ctx, `
		INSERT INTO bankrec.journal_entries (entry_id, statement_line_id, company_id, date, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.EntryID, entry.StatementLineID, entry.CompanyID, entry.Date, entry.CreatedAt,
	)
	if err != nil {
		return "", mapError(err, "journal entry")
	}

	for _, line := range entry.Lines {
		payload, err := json.Marshal(line)
		if err != nil {
			return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal journal item", err)
		}
		tags := line.TaxTagIDs
		if tags == nil {
			tags = []string{}
		}
		tagJSON, err := json.Marshal(tags)
		if err != nil {
			return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal tax tags", err)
		}
		_, err = j.tx.ExecContext(ctx, `
			INSERT INTO bankrec.journal_items (
				entry_id, line_id, position_index, flag, account_id, partner_id, currency,
				amount_currency, balance, label, tax_tag_ids, line
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			entry.EntryID, line.ID, line.Index, line.Kind(), line.AccountID, line.PartnerID, line.Currency,
			line.AmountCurrency, line.Balance, line.Label, tagJSON, payload,
		)
		if err != nil {
			return "", mapError(err, "journal item")
		}
	}
	return entry.EntryID, nil
}

// SettleOpenItem reduces the open residual of the linked item by the allocation and records the link.
// An item that is already reconciled, or whose residual has dropped below the allocation since the
// session was started, fails with a UserError.
func (j *journalTx) SettleOpenItem(ctx context.Context, link model.ReconciliationLink) error {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "SettleOpenItem")
	defer span.End()

	res, err := j.tx.ExecContext(ctx, `
		UPDATE bankrec.open_items
		SET amount_currency = amount_currency - $2, balance = balance - $3, reconciled = $4
		WHERE item_id = $1 AND reconciled = FALSE AND abs(amount_currency) >= abs($2)`,
		link.OpenItemID, link.AllocatedAmountCurrency, link.AllocatedBalance, link.Full,
	)
	if err != nil {
		return mapError(err, "open item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle open item", err)
	}
	if n == 0 {
		return &model.UserError{Message: "open item " + link.OpenItemID + " is no longer open for the allocated amount"}
	}

	if link.LinkID == "" {
		link.LinkID = model.GenerateUUIDWithSuffix("lnk")
	}
	_, err = j.tx.ExecContext(ctx, `
		INSERT INTO bankrec.reconciliation_links (
			link_id, statement_line_id, entry_id, open_item_id, allocated_amount_currency,
			allocated_balance, full_reconcile, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		link.LinkID, link.StatementLineID, link.EntryID, link.OpenItemID, link.AllocatedAmountCurrency,
		link.AllocatedBalance, link.Full, time.Now(),
	)
	return mapError(err, "reconciliation link")
}

// MarkStatementReconciled flags the statement line as reconciled. It fails with
// model.ErrAlreadyReconciled when another posting got there first.
func (j *journalTx) MarkStatementReconciled(ctx context.Context, statementLineID string) error {
	res, err := j.tx.ExecContext(ctx, `
		UPDATE bankrec.statement_lines SET is_reconciled = TRUE
		WHERE statement_line_id = $1 AND is_reconciled = FALSE`, statementLineID)
	if err != nil {
		return mapError(err, "statement line")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrAlreadyReconciled
	}
	return nil
}

func (j *journalTx) Commit() error {
	return j.tx.Commit()
}

func (j *journalTx) Rollback() error {
	return j.tx.Rollback()
}

// GetJournalEntry returns the entry posted for a statement line with its lines in position order.
func (d Datasource) GetJournalEntry(ctx context.Context, statementLineID string) (*model.JournalEntry, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetJournalEntry")
	defer span.End()

	entry := model.JournalEntry{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT entry_id, statement_line_id, company_id, date, created_at
		FROM bankrec.journal_entries
		WHERE statement_line_id = $1
	`, statementLineID).Scan(&entry.EntryID, &entry.StatementLineID, &entry.CompanyID, &entry.Date, &entry.CreatedAt)
	if err != nil {
		return nil, mapError(err, "journal entry")
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT line FROM bankrec.journal_items WHERE entry_id = $1 ORDER BY position_index
	`, entry.EntryID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve journal items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan journal item", err)
		}
		var line model.ReconciliationLine
		if err := json.Unmarshal(payload, &line); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal journal item", err)
		}
		entry.Lines = append(entry.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over journal items", err)
	}
	return &entry, nil
}

func (d Datasource) ListReconciliationLinks(ctx context.Context, statementLineID string) ([]model.ReconciliationLink, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ListReconciliationLinks")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT link_id, statement_line_id, entry_id, open_item_id, allocated_amount_currency,
			allocated_balance, full_reconcile, created_at
		FROM bankrec.reconciliation_links
		WHERE statement_line_id = $1
		ORDER BY id`, statementLineID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reconciliation links", err)
	}
	defer rows.Close()

	links := []model.ReconciliationLink{}
	for rows.Next() {
		l := model.ReconciliationLink{}
		err := rows.Scan(&l.LinkID, &l.StatementLineID, &l.EntryID, &l.OpenItemID, &l.AllocatedAmountCurrency,
			&l.AllocatedBalance, &l.Full, &l.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconciliation link", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over reconciliation links", err)
	}
	return links, nil
}
