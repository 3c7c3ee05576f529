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
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	redlock "github.com/jerry-enebeli/bankrec/internal/lock"
	"github.com/jerry-enebeli/bankrec/internal/notification"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
)

// Run triggers recorded on reports.
const (
	TriggerPeriodic    = "periodic"
	TriggerRescheduled = "rescheduled"
	TriggerSync        = "sync"
	TriggerManual      = "manual"
)

// Trigger asks for a job to run again promptly.
type Trigger interface {
	ScheduleSoon(ctx context.Context, jobID string) (bool, error)
}

// RunOptions bound one scheduler run. A zero BatchSize uses the configured batch size and a zero
// LimitTime means no time limit.
type RunOptions struct {
	BatchSize int
	LimitTime time.Duration
	Trigger   string
}

type lineOutcome int

const (
	lineBusy lineOutcome = iota
	lineVisited
	lineSkipped
	lineReconciled
)

// Scheduler is the auto-reconciliation batch. It visits unreconciled statement lines, applies the
// unattended reconcile models and validates the lines they fully explain.
type Scheduler struct {
	svc     *BankRec
	trigger Trigger
	now     func() time.Time
}

// NewScheduler builds a scheduler with an explicit trigger and clock.
func NewScheduler(svc *BankRec, trigger Trigger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{svc: svc, trigger: trigger, now: now}
}

// Scheduler returns the auto-reconciliation scheduler wired to the service queue.
func (s *BankRec) Scheduler() *Scheduler {
	var trigger Trigger
	if s.queue != nil {
		trigger = s.queue
	}
	return NewScheduler(s, trigger, s.now)
}

// Run processes one batch. Lines are taken never-checked first, then longest-stale, and every line
// visited is stamped whatever its outcome. When lines remain and the run made progress, or the next
// line was never checked, a prompt rerun is requested.
func (sc *Scheduler) Run(ctx context.Context, opts RunOptions) (model.AutoReconcileRun, error) {
	ctx, span := tracer.Start(ctx, "AutoReconcile")
	defer span.End()

	cfg := sc.svc.config.Reconciliation
	started := sc.now()
	report := model.AutoReconcileRun{
		RunID:     model.GenerateUUIDWithSuffix("run"),
		Trigger:   opts.Trigger,
		StartedAt: started,
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = cfg.BatchSize
	}

	companies, err := sc.svc.datasource.ListAutoReconcileCompanies(ctx)
	if err != nil {
		span.RecordError(err)
		return report, err
	}
	var lines []model.StatementLine
	if len(companies) > 0 {
		since := started.AddDate(0, -cfg.LookbackMonths, 0)
		lines, err = sc.svc.datasource.GetAutoReconcileCandidates(ctx, since, companies, batchSize+1)
		if err != nil {
			span.RecordError(err)
			return report, err
		}
	}

	var remaining *model.StatementLine
	if len(lines) > batchSize {
		remaining = &lines[batchSize]
		lines = lines[:batchSize]
	}

	var deadline time.Time
	if opts.LimitTime > 0 {
		deadline = started.Add(opts.LimitTime)
	}
	models := map[string][]model.ReconcileModel{}
	for i := range lines {
		if (!deadline.IsZero() && !sc.now().Before(deadline)) || ctx.Err() != nil {
			remaining = &lines[i]
			report.TimedOut = true
			break
		}
		switch sc.processLine(ctx, lines[i], models) {
		case lineReconciled:
			report.Visited++
			report.Reconciled++
		case lineSkipped:
			report.Visited++
			report.Skipped++
		case lineVisited:
			report.Visited++
		}
	}

	if remaining != nil {
		report.RemainingID = remaining.StatementLineID
		if sc.trigger != nil && (report.Reconciled > 0 || remaining.LastAutoCheck == nil) {
			if _, err := sc.trigger.ScheduleSoon(ctx, AutoReconcileJobID); err != nil {
				logrus.WithError(err).Error("failed to schedule auto-reconciliation rerun")
			} else {
				report.Rescheduled = true
			}
		}
	}

	report.FinishedAt = ptr.Time(sc.now())
	if err := sc.svc.datasource.RecordAutoReconcileRun(ctx, report); err != nil {
		logrus.WithError(err).Warn("failed to record auto-reconciliation run")
	}
	span.SetAttributes(
		attribute.Int("run.visited", report.Visited),
		attribute.Int("run.reconciled", report.Reconciled),
	)
	logrus.WithFields(logrus.Fields{
		"run_id":      report.RunID,
		"trigger":     report.Trigger,
		"visited":     report.Visited,
		"reconciled":  report.Reconciled,
		"skipped":     report.Skipped,
		"remaining":   report.RemainingID,
		"rescheduled": report.Rescheduled,
		"timed_out":   report.TimedOut,
	}).Info("auto-reconciliation run finished")
	return report, nil
}

// RunSync is the run made right after a reconcile model changes. Its time limit never exceeds the
// synchronous cap, even when background runs are unlimited.
func (sc *Scheduler) RunSync(ctx context.Context) (model.AutoReconcileRun, error) {
	return sc.Run(ctx, RunOptions{LimitTime: sc.syncTimeLimit(), Trigger: TriggerSync})
}

func (sc *Scheduler) syncTimeLimit() time.Duration {
	cfg := sc.svc.config.Reconciliation
	limitCap := time.Duration(cfg.SyncTimeLimitSec) * time.Second
	if limit := cfg.TimeLimit(); limit > 0 && limit < limitCap {
		return limit
	}
	return limitCap
}

// processLine handles one statement line under its lock. A line another run holds or has already
// stamped is left alone.
func (sc *Scheduler) processLine(ctx context.Context, st model.StatementLine, models map[string][]model.ReconcileModel) lineOutcome {
	log := logrus.WithField("statement_line_id", st.StatementLineID)

	locker := redlock.NewLocker(sc.svc.redis, redlock.StatementLineKey(st.StatementLineID), model.GenerateUUIDWithSuffix("run"))
	if err := locker.Lock(ctx, sc.svc.lineLockTTL()); err != nil {
		if !errors.Is(err, redlock.ErrLockHeld) {
			log.WithError(err).Warn("could not lock statement line")
		}
		return lineBusy
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			log.Warn(err)
		}
	}()

	claimed, err := sc.svc.datasource.ClaimStatementLine(ctx, st.ID, st.LastAutoCheck, sc.now())
	if err != nil {
		log.WithError(err).Warn("could not claim statement line")
		return lineBusy
	}
	if !claimed {
		return lineBusy
	}

	candidates, err := sc.modelsFor(ctx, st.CompanyID, models)
	if err != nil {
		log.WithError(err).Warn("could not load reconcile models")
		return lineSkipped
	}
	r, err := sc.svc.StartReconciliation(ctx, st)
	if err != nil {
		log.WithError(err).Info("statement line skipped")
		return lineSkipped
	}
	app, err := sc.svc.applyModels(ctx, r, candidates)
	if err != nil {
		log.WithError(err).Info("statement line skipped")
		return lineSkipped
	}
	if app.Model == nil || !app.AllowAuto || r.State() != StateValid {
		return lineVisited
	}

	res, err := r.Validate(ctx)
	if err != nil {
		notification.NotifyError(err)
		return lineSkipped
	}
	if res.Outcome == OutcomeSkipped {
		return lineSkipped
	}
	if err := sc.svc.DiscardReconciliation(ctx, st.StatementLineID); err != nil {
		log.WithError(err).Warn("could not discard session")
	}
	return lineReconciled
}

// modelsFor returns the models a company can apply unattended, loading them once per run. Models
// without auto reconcile stay in the list so that one at a higher priority still wins the line and
// keeps it for review.
func (sc *Scheduler) modelsFor(ctx context.Context, companyID string, loaded map[string][]model.ReconcileModel) ([]model.ReconcileModel, error) {
	if models, ok := loaded[companyID]; ok {
		return models, nil
	}
	all, err := sc.svc.datasource.ListReconcileModels(ctx, companyID, true)
	if err != nil {
		return nil, err
	}
	models := filterModels(all, unattendedRuleTypes)
	loaded[companyID] = models
	return models, nil
}

// ProcessAutoReconcileTask is the worker handler of TypeAutoReconcile tasks. It clears the pending
// marker first, so schedule requests made during the run queue a follow-up.
func (s *BankRec) ProcessAutoReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload AutoReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		payload.JobID = AutoReconcileJobID
	}
	if s.queue != nil {
		if err := s.queue.ClearPending(ctx, payload.JobID); err != nil {
			logrus.WithError(err).Warn("failed to clear pending marker")
		}
	}
	_, err := s.Scheduler().Run(ctx, RunOptions{LimitTime: s.config.Reconciliation.TimeLimit(), Trigger: payload.Trigger})
	if err != nil {
		notification.NotifyError(err)
	}
	return err
}
