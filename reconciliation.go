/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bankrec

import (
	"context"

	"github.com/jerry-enebeli/bankrec/balancer"
	"github.com/jerry-enebeli/bankrec/database"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// State is the position of a statement line in the reconciliation lifecycle.
type State string

const (
	StateInvalid    State = "invalid"
	StateValid      State = "valid"
	StateReconciled State = "reconciled"
)

// Outcome tells what Validate did with a valid line set.
type Outcome string

const (
	OutcomeReconciled Outcome = "reconciled"
	OutcomeSkipped    Outcome = "skipped"
)

// Result is returned by Validate. A skipped result carries the domain reason posting was refused.
type Result struct {
	Outcome Outcome `json:"outcome"`
	EntryID string  `json:"entry_id,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Reconciliation drives one statement line from its seeded line set to a posted journal entry.
type Reconciliation struct {
	datasource     database.IDataSource
	balancer       *balancer.Balancer
	appliedModelID string
	reconciled     bool
	entryID        string
}

// StartReconciliation seeds a fresh line set for a statement line.
func (s *BankRec) StartReconciliation(ctx context.Context, st model.StatementLine) (*Reconciliation, error) {
	ctx, span := tracer.Start(ctx, "StartReconciliation")
	defer span.End()
	span.SetAttributes(attribute.String("statement_line.id", st.StatementLineID))

	if st.IsReconciled {
		return nil, model.ErrAlreadyReconciled
	}
	company, err := s.datasource.GetCompany(ctx, st.CompanyID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	b, err := balancer.New(ctx, *company, st, s.converterFor(*company), s.taxes, s.balancerOptions())
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "seeding line set")
	}
	return &Reconciliation{datasource: s.datasource, balancer: b}, nil
}

// State is derived from the line set: reconciled once posted, valid while the lines can be posted.
func (r *Reconciliation) State() State {
	if r.reconciled {
		return StateReconciled
	}
	if r.balancer.Check() == nil {
		return StateValid
	}
	return StateInvalid
}

func (r *Reconciliation) StatementLine() model.StatementLine { return r.balancer.Statement() }

func (r *Reconciliation) Lines() []model.ReconciliationLine { return r.balancer.Lines() }

func (r *Reconciliation) Warnings() []model.DegenerateRateWarning { return r.balancer.Warnings() }

// EntryID is the posted journal entry, empty until Validate reconciles the line.
func (r *Reconciliation) EntryID() string { return r.entryID }

// AppliedModelID is the reconcile model last applied by the rule engine, if any.
func (r *Reconciliation) AppliedModelID() string { return r.appliedModelID }

func (r *Reconciliation) AddMatchedItem(ctx context.Context, item model.OpenItem, opts ...balancer.AddOption) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	return r.balancer.AddMatchedItem(ctx, item, opts...)
}

func (r *Reconciliation) RemoveMatchedItem(ctx context.Context, itemID string) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	return r.balancer.RemoveMatchedItem(ctx, itemID)
}

func (r *Reconciliation) AddManualLine(ctx context.Context, ml balancer.ManualLine) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	return r.balancer.AddManualLine(ctx, ml)
}

func (r *Reconciliation) RemoveLine(ctx context.Context, index int) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	return r.balancer.RemoveLine(ctx, index)
}

func (r *Reconciliation) EditLine(ctx context.Context, index int, e balancer.Edit) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	return r.balancer.EditLine(ctx, index, e)
}

// SelectReconcileModel instantiates a write-off model's template lines on the current residual.
func (r *Reconciliation) SelectReconcileModel(ctx context.Context, m model.ReconcileModel) ([]model.ReconciliationLine, error) {
	if r.reconciled {
		return nil, model.ErrAlreadyReconciled
	}
	lines, err := r.balancer.SelectReconcileModel(ctx, m)
	if err != nil {
		return nil, err
	}
	r.appliedModelID = m.ModelID
	return lines, nil
}

// Reset returns the line set to its seeded state. It is refused once the line is reconciled.
func (r *Reconciliation) Reset(ctx context.Context) error {
	if r.reconciled {
		return model.ErrAlreadyReconciled
	}
	r.appliedModelID = ""
	return r.balancer.Reset(ctx)
}

// Validate posts the line set as a journal entry and settles every matched open item, all in one
// transaction. Domain failures raised while posting roll the attempt back and yield a skipped result.
func (r *Reconciliation) Validate(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Validate")
	defer span.End()

	if r.reconciled {
		return Result{}, model.ErrAlreadyReconciled
	}
	if err := r.balancer.Check(); err != nil {
		return Result{}, err
	}

	st := r.balancer.Statement()
	res, err := r.post(ctx)
	if err != nil {
		var userErr *model.UserError
		switch {
		case errors.As(err, &userErr):
			logrus.WithFields(logrus.Fields{"statement_line_id": st.StatementLineID, "reason": userErr.Message}).
				Info("reconciliation skipped")
			return Result{Outcome: OutcomeSkipped, Reason: userErr.Message}, nil
		case errors.Is(err, model.ErrAlreadyReconciled):
			return Result{Outcome: OutcomeSkipped, Reason: err.Error()}, nil
		}
		span.RecordError(err)
		return Result{}, errors.Wrap(err, "posting reconciliation")
	}

	r.reconciled = true
	r.entryID = res.EntryID
	span.SetAttributes(attribute.String("journal_entry.id", res.EntryID))
	return res, nil
}

func (r *Reconciliation) post(ctx context.Context) (Result, error) {
	st := r.balancer.Statement()
	tx, err := r.datasource.BeginPosting(ctx)
	if err != nil {
		return Result{}, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.WithField("statement_line_id", st.StatementLineID).Errorf("rollback failed: %v", rbErr)
		}
	}()

	entryID, err := tx.PostEntry(ctx, model.JournalEntry{
		StatementLineID: st.StatementLineID,
		CompanyID:       st.CompanyID,
		Date:            st.Date,
		Lines:           r.balancer.Lines(),
	})
	if err != nil {
		return Result{}, err
	}
	for _, a := range r.balancer.Allocations() {
		err := tx.SettleOpenItem(ctx, model.ReconciliationLink{
			StatementLineID:         st.StatementLineID,
			EntryID:                 entryID,
			OpenItemID:              a.Item.ItemID,
			AllocatedAmountCurrency: a.AmountCurrency,
			AllocatedBalance:        a.Balance,
			Full:                    a.Full,
		})
		if err != nil {
			return Result{}, err
		}
	}
	if err := tx.MarkStatementReconciled(ctx, st.StatementLineID); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	committed = true
	return Result{Outcome: OutcomeReconciled, EntryID: entryID}, nil
}
