package bankrec

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jerry-enebeli/bankrec/balancer"
	"github.com/jerry-enebeli/bankrec/internal/cache"
	redlock "github.com/jerry-enebeli/bankrec/internal/lock"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/sirupsen/logrus"
)

const sessionLockWait = 5 * time.Second

// session is what the store keeps between requests for one statement line.
type session struct {
	Snapshot       balancer.Snapshot `json:"snapshot"`
	AppliedModelID string            `json:"applied_model_id,omitempty"`
}

func sessionKey(statementLineID string) string {
	return "bankrec:session:" + statementLineID
}

func (s *BankRec) sessionTTL() time.Duration {
	return time.Duration(s.config.Reconciliation.SessionTTLSec) * time.Second
}

func (s *BankRec) lineLockTTL() time.Duration {
	return time.Duration(s.config.Reconciliation.LineLockTTLSec) * time.Second
}

// OpenReconciliation returns the in-progress reconciliation of a statement line, restored from the
// session store when one was saved, freshly seeded otherwise.
func (s *BankRec) OpenReconciliation(ctx context.Context, statementLineID string) (*Reconciliation, error) {
	ctx, span := tracer.Start(ctx, "OpenReconciliation")
	defer span.End()

	st, err := s.datasource.GetStatementLine(ctx, statementLineID)
	if err != nil {
		return nil, err
	}
	if st.IsReconciled {
		return nil, model.ErrAlreadyReconciled
	}

	saved, ok := s.loadSession(ctx, statementLineID)
	if !ok {
		return s.StartReconciliation(ctx, *st)
	}
	company, err := s.datasource.GetCompany(ctx, st.CompanyID)
	if err != nil {
		return nil, err
	}
	b := balancer.Restore(*company, *st, s.converterFor(*company), s.taxes, s.balancerOptions(), saved.Snapshot)
	return &Reconciliation{datasource: s.datasource, balancer: b, appliedModelID: saved.AppliedModelID}, nil
}

// SaveReconciliation stores the line set for the next request. A reconciled line has nothing left to
// keep, so its session is dropped instead.
func (s *BankRec) SaveReconciliation(ctx context.Context, r *Reconciliation) error {
	id := r.StatementLine().StatementLineID
	if r.reconciled {
		return s.DiscardReconciliation(ctx, id)
	}
	if s.sessions == nil {
		return nil
	}
	data, err := json.Marshal(session{Snapshot: r.balancer.Snapshot(), AppliedModelID: r.appliedModelID})
	if err != nil {
		return err
	}
	return s.sessions.Set(ctx, sessionKey(id), string(data), s.sessionTTL())
}

// DiscardReconciliation forgets any saved line set of a statement line.
func (s *BankRec) DiscardReconciliation(ctx context.Context, statementLineID string) error {
	if s.sessions == nil {
		return nil
	}
	err := s.sessions.Delete(ctx, sessionKey(statementLineID))
	if errors.Is(err, cache.ErrMiss) {
		return nil
	}
	return err
}

// UpdateReconciliation opens the session of a statement line under its lock, applies fn and saves the
// outcome. Nothing is saved when fn fails, so each call is all-or-nothing.
func (s *BankRec) UpdateReconciliation(ctx context.Context, statementLineID string, fn func(*Reconciliation) error) (*Reconciliation, error) {
	locker := redlock.NewLocker(s.redis, redlock.StatementLineKey(statementLineID), model.GenerateUUIDWithSuffix("ses"))
	if err := locker.WaitLock(ctx, s.lineLockTTL(), sessionLockWait); err != nil {
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.WithField("statement_line_id", statementLineID).Warn(err)
		}
	}()

	r, err := s.OpenReconciliation(ctx, statementLineID)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	if err := s.SaveReconciliation(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *BankRec) loadSession(ctx context.Context, statementLineID string) (session, bool) {
	var saved session
	if s.sessions == nil {
		return saved, false
	}
	var raw string
	if err := s.sessions.Get(ctx, sessionKey(statementLineID), &raw); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logrus.WithError(err).Warn("session lookup failed")
		}
		return saved, false
	}
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		logrus.WithError(err).WithField("statement_line_id", statementLineID).Warn("discarding unreadable session")
		return saved, false
	}
	return saved, true
}
