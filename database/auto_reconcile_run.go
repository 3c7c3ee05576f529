package database

import (
	"context"
	"database/sql"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
)

// RecordAutoReconcileRun persists the report of one scheduler run.
func (d Datasource) RecordAutoReconcileRun(ctx context.Context, run model.AutoReconcileRun) error {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "RecordAutoReconcileRun")
	defer span.End()

	if run.RunID == "" {
		run.RunID = model.GenerateUUIDWithSuffix("run")
	}
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO bankrec.auto_reconcile_runs (
			run_id, trigger, started_at, finished_at, visited, reconciled, skipped,
			remaining_id, rescheduled, timed_out
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.RunID, run.Trigger, run.StartedAt, run.FinishedAt, run.Visited, run.Reconciled, run.Skipped,
		run.RemainingID, run.Rescheduled, run.TimedOut,
	)
	return mapError(err, "auto reconcile run")
}

// ListAutoReconcileRuns returns the most recent run reports first.
func (d Datasource) ListAutoReconcileRuns(ctx context.Context, limit int) ([]model.AutoReconcileRun, error) {
	ctx, span := otel.Tracer("bankrec.database").Start(ctx, "ListAutoReconcileRuns")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT run_id, trigger, started_at, finished_at, visited, reconciled, skipped,
			remaining_id, rescheduled, timed_out
		FROM bankrec.auto_reconcile_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve auto reconcile runs", err)
	}
	defer rows.Close()

	runs := []model.AutoReconcileRun{}
	for rows.Next() {
		r := model.AutoReconcileRun{}
		var finished sql.NullTime
		err := rows.Scan(&r.RunID, &r.Trigger, &r.StartedAt, &finished, &r.Visited, &r.Reconciled, &r.Skipped,
			&r.RemainingID, &r.Rescheduled, &r.TimedOut)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan auto reconcile run", err)
		}
		if finished.Valid {
			r.FinishedAt = ptr.Time(finished.Time)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over runs", err)
	}
	return runs, nil
}
