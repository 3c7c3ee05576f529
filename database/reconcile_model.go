package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"go.opentelemetry.io/otel"
)

const reconcileModelColumns = `id, model_id, company_id, name, sequence, rule_type, auto_reconcile, active,
	conditions, payment_tolerance, lines, created_at, updated_at`

type reconcileModelJSON struct {
	conditions []byte
	tolerance  []byte
	lines      []byte
}

func marshalReconcileModel(m model.ReconcileModel) (reconcileModelJSON, error) {
	var out reconcileModelJSON
	var err error
	conditions := m.Conditions
	if conditions == nil {
		conditions = []model.MatchCondition{}
	}
	if out.conditions, err = json.Marshal(conditions); err != nil {
		return out, err
	}
	lines := m.Lines
	if lines == nil {
		lines = []model.ModelLine{}
	}
	if out.lines, err = json.Marshal(lines); err != nil {
		return out, err
	}
	if m.PaymentTolerance != nil {
		if out.tolerance, err = json.Marshal(m.PaymentTolerance); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d Datasource) CreateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "CreateReconcileModel")
	defer span.End()

	if m.ModelID == "" {
		m.ModelID = model.GenerateUUIDWithSuffix("rcm")
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt

	payload, err := marshalReconcileModel(m)
	if err != nil {
		return model.ReconcileModel{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal reconcile model", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO bankrec.reconcile_models (
			model_id, company_id, name, sequence, rule_type, auto_reconcile, active, conditions,
			payment_tolerance, lines, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		m.ModelID, m.CompanyID, m.Name, m.Sequence, m.RuleType, m.AutoReconcile, m.Active,
		payload.conditions, nullableJSON(payload.tolerance), payload.lines, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return model.ReconcileModel{}, mapError(err, "reconcile model")
	}
	return m, nil
}

func (d Datasource) GetReconcileModel(ctx context.Context, id string) (*model.ReconcileModel, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "GetReconcileModel")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+reconcileModelColumns+`
		FROM bankrec.reconcile_models
		WHERE model_id = $1`, id)
	m, err := scanReconcileModel(row)
	if err != nil {
		return nil, mapError(err, "reconcile model")
	}
	return m, nil
}

// ListReconcileModels returns the models of a company in the order they are evaluated.
func (d Datasource) ListReconcileModels(ctx context.Context, companyID string, activeOnly bool) ([]model.ReconcileModel, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ListReconcileModels")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `SELECT `+reconcileModelColumns+`
		FROM bankrec.reconcile_models
		WHERE company_id = $1 AND (active OR NOT $2)
		ORDER BY sequence, id`, companyID, activeOnly)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reconcile models", err)
	}
	defer rows.Close()

	models := []model.ReconcileModel{}
	for rows.Next() {
		m, err := scanReconcileModel(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconcile model", err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over reconcile models", err)
	}
	return models, nil
}

func (d Datasource) UpdateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "UpdateReconcileModel")
	defer span.End()

	m.UpdatedAt = time.Now()
	payload, err := marshalReconcileModel(m)
	if err != nil {
		return model.ReconcileModel{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal reconcile model", err)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bankrec.reconcile_models
		SET name = $2, sequence = $3, rule_type = $4, auto_reconcile = $5, active = $6,
			conditions = $7, payment_tolerance = $8, lines = $9, updated_at = $10
		WHERE model_id = $1`,
		m.ModelID, m.Name, m.Sequence, m.RuleType, m.AutoReconcile, m.Active,
		payload.conditions, nullableJSON(payload.tolerance), payload.lines, m.UpdatedAt,
	)
	if err != nil {
		return model.ReconcileModel{}, mapError(err, "reconcile model")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ReconcileModel{}, apierror.NewAPIError(apierror.ErrNotFound, "reconcile model not found", nil)
	}
	return m, nil
}

func (d Datasource) DeleteReconcileModel(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "DeleteReconcileModel")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `DELETE FROM bankrec.reconcile_models WHERE model_id = $1`, id)
	if err != nil {
		return mapError(err, "reconcile model")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "reconcile model not found", nil)
	}
	return nil
}

// ListAutoReconcileCompanies returns the companies owning at least one active model the scheduler
// is allowed to run unattended.
func (d Datasource) ListAutoReconcileCompanies(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ListAutoReconcileCompanies")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT company_id
		FROM bankrec.reconcile_models
		WHERE active AND auto_reconcile AND rule_type IN ('invoice_matching', 'writeoff_suggestion')
		ORDER BY company_id`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve companies", err)
	}
	defer rows.Close()

	companies := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan company id", err)
		}
		companies = append(companies, id)
	}
	return companies, rows.Err()
}

func scanReconcileModel(row rowScanner) (*model.ReconcileModel, error) {
	m := model.ReconcileModel{}
	var conditions, tolerance, lines []byte
	err := row.Scan(
		&m.ID, &m.ModelID, &m.CompanyID, &m.Name, &m.Sequence, &m.RuleType, &m.AutoReconcile,
		&m.Active, &conditions, &tolerance, &lines, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &m.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &m.Lines); err != nil {
		return nil, err
	}
	if len(tolerance) > 0 {
		m.PaymentTolerance = &model.PaymentTolerance{}
		if err := json.Unmarshal(tolerance, m.PaymentTolerance); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
