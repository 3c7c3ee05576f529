package bankrec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jerry-enebeli/bankrec/database/mocks"
	redlock "github.com/jerry-enebeli/bankrec/internal/lock"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

type recordingTrigger struct {
	calls []string
	err   error
}

func (r *recordingTrigger) ScheduleSoon(_ context.Context, jobID string) (bool, error) {
	r.calls = append(r.calls, jobID)
	return r.err == nil, r.err
}

// steppingClock advances by step on every reading.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

func candidates(lines ...model.StatementLine) []model.StatementLine { return lines }

func expectRunBasics(ds *mocks.MockDataSource) {
	ds.On("ListAutoReconcileCompanies", mock.Anything).Return([]string{"co_1"}, nil)
	ds.On("RecordAutoReconcileRun", mock.Anything, mock.Anything).Return(nil)
}

func expectPosting(ds *mocks.MockDataSource, settleErr error) *mocks.MockJournalTx {
	tx := new(mocks.MockJournalTx)
	ds.On("BeginPosting", mock.Anything).Return(tx, nil)
	tx.On("PostEntry", mock.Anything, mock.Anything).Return("jrn_1", nil)
	tx.On("SettleOpenItem", mock.Anything, mock.Anything).Return(settleErr)
	tx.On("MarkStatementReconciled", mock.Anything, mock.Anything).Return(nil)
	tx.On("Commit").Return(nil)
	tx.On("Rollback").Return(nil)
	return tx
}

func TestSchedulerRun_VisitsNeverCheckedFirst(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	t1 := testNow.Add(-48 * time.Hour)
	t2 := testNow.Add(-24 * time.Hour)
	a, b, c, e := testStatement(1, "10"), testStatement(2, "20"), testStatement(3, "30"), testStatement(4, "40")
	c.LastAutoCheck = ptr.Time(t1)
	e.LastAutoCheck = ptr.Time(t2)
	ds.On("GetAutoReconcileCandidates", mock.Anything, testNow.AddDate(0, -3, 0), []string{"co_1"}, 1001).
		Return(candidates(a, b, c, e), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{bankFeesModel()}, nil).Once()

	var claimed []int64
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, testNow).
		Run(func(args mock.Arguments) { claimed = append(claimed, args.Get(1).(int64)) }).
		Return(true, nil)

	trigger := &recordingTrigger{}
	report, err := NewScheduler(svc, trigger, fixedClock()).Run(ctx, RunOptions{Trigger: TriggerPeriodic})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, claimed)
	assert.Equal(t, 4, report.Visited)
	assert.Zero(t, report.Reconciled)
	assert.Empty(t, report.RemainingID)
	assert.False(t, report.Rescheduled)
	assert.Empty(t, trigger.calls)
	ds.AssertCalled(t, "ClaimStatementLine", mock.Anything, int64(3), ptr.Time(t1), testNow)
	ds.AssertNumberOfCalls(t, "ListReconcileModels", 1)
}

func TestSchedulerRun_BatchTruncation(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{bankFeesModel()}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	first, second := testStatement(1, "10"), testStatement(2, "20")
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, []string{"co_1"}, 2).
		Return(candidates(first, second), nil).Once()

	trigger := &recordingTrigger{}
	sc := NewScheduler(svc, trigger, fixedClock())
	report, err := sc.Run(ctx, RunOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Equal(t, "stl_2", report.RemainingID)
	assert.True(t, report.Rescheduled, "the next line was never checked")
	assert.Equal(t, []string{AutoReconcileJobID}, trigger.calls)

	stamped := first
	stamped.LastAutoCheck = ptr.Time(testNow)
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, []string{"co_1"}, 2).
		Return(candidates(second, stamped), nil).Once()

	report, err = sc.Run(ctx, RunOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Equal(t, "stl_1", report.RemainingID)
	assert.False(t, report.Rescheduled)
	assert.Len(t, trigger.calls, 1)
}

func TestSchedulerRun_ReconcilesAndReschedulesAfterProgress(t *testing.T) {
	ctx := context.Background()
	svc, ds, mr := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	paid := testStatement(1, "1000")
	paid.PartnerID = "ptn_1"
	stale := testStatement(2, "50")
	stale.LastAutoCheck = ptr.Time(testNow.Add(-time.Hour))
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, 2).Return(candidates(paid, stale), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{invoiceModel()}, nil)
	ds.On("ListOpenItems", mock.Anything, mock.Anything).Return([]model.OpenItem{testOpenItem("itm_1", "1000")}, nil)
	ds.On("ClaimStatementLine", mock.Anything, int64(1), (*time.Time)(nil), testNow).Return(true, nil)
	tx := expectPosting(ds, nil)
	require.NoError(t, mr.Set(sessionKey("stl_1"), "stale session"))

	trigger := &recordingTrigger{}
	report, err := NewScheduler(svc, trigger, fixedClock()).Run(ctx, RunOptions{BatchSize: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Reconciled)
	assert.Equal(t, "stl_2", report.RemainingID)
	assert.True(t, report.Rescheduled, "a reconciled line earns a prompt rerun")
	tx.AssertCalled(t, "Commit")
	assert.False(t, mr.Exists(sessionKey("stl_1")))
	assert.False(t, mr.Exists(redlock.StatementLineKey("stl_1")))
}

func TestSchedulerRun_UserErrorSkipsLineAndContinues(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	a, b := testStatement(1, "1000"), testStatement(2, "1000")
	a.PartnerID, b.PartnerID = "ptn_1", "ptn_1"
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(candidates(a, b), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{invoiceModel()}, nil)
	ds.On("ListOpenItems", mock.Anything, mock.Anything).Return([]model.OpenItem{testOpenItem("itm_1", "1000")}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	tx := expectPosting(ds, &model.UserError{Message: "open item itm_1 is no longer open"})

	report, err := NewScheduler(svc, &recordingTrigger{}, fixedClock()).Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Visited)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Reconciled)
	tx.AssertNumberOfCalls(t, "Rollback", 2)
	ds.AssertNumberOfCalls(t, "ClaimStatementLine", 2)
}

func TestSchedulerRun_ModelWithoutAutoReconcileIsNotPosted(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	manual := invoiceModel()
	manual.AutoReconcile = false
	st := testStatement(1, "1000")
	st.PartnerID = "ptn_1"
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(candidates(st), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{manual}, nil)
	ds.On("ListOpenItems", mock.Anything, mock.Anything).Return([]model.OpenItem{testOpenItem("itm_1", "1000")}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	report, err := NewScheduler(svc, nil, fixedClock()).Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Zero(t, report.Reconciled)
	ds.AssertNotCalled(t, "BeginPosting", mock.Anything)
}

func TestSchedulerRun_HigherPriorityManualModelShadowsAutoModel(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	manual := invoiceModel()
	manual.ModelID = "rcm_manual"
	manual.Sequence = 5
	manual.AutoReconcile = false
	st := testStatement(1, "1000")
	st.PartnerID = "ptn_1"
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(candidates(st), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{manual, invoiceModel()}, nil)
	ds.On("ListOpenItems", mock.Anything, mock.Anything).Return([]model.OpenItem{testOpenItem("itm_1", "1000")}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	report, err := NewScheduler(svc, nil, fixedClock()).Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Zero(t, report.Reconciled)
	ds.AssertNotCalled(t, "BeginPosting", mock.Anything)
	ds.AssertNumberOfCalls(t, "ListOpenItems", 1)
}

func TestSchedulerRun_LockedOrClaimedLinesAreLeftAlone(t *testing.T) {
	ctx := context.Background()
	svc, ds, mr := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	locked, raced, free := testStatement(1, "10"), testStatement(2, "20"), testStatement(3, "30")
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(candidates(locked, raced, free), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{bankFeesModel()}, nil)
	ds.On("ClaimStatementLine", mock.Anything, int64(2), mock.Anything, mock.Anything).Return(false, nil)
	ds.On("ClaimStatementLine", mock.Anything, int64(3), mock.Anything, mock.Anything).Return(true, nil)
	require.NoError(t, mr.Set(redlock.StatementLineKey("stl_1"), "someone else"))

	report, err := NewScheduler(svc, nil, fixedClock()).Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	ds.AssertNotCalled(t, "ClaimStatementLine", mock.Anything, int64(1), mock.Anything, mock.Anything)
}

func TestSchedulerRun_TimeLimitStopsBetweenLines(t *testing.T) {
	ctx := context.Background()
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())

	a, b, c := testStatement(1, "10"), testStatement(2, "20"), testStatement(3, "30")
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(candidates(a, b, c), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{bankFeesModel()}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	// one minute per clock reading: start, check line 1, claim line 1, check line 2
	trigger := &recordingTrigger{}
	sc := NewScheduler(svc, trigger, steppingClock(testNow, time.Minute))
	report, err := sc.Run(ctx, RunOptions{LimitTime: 150 * time.Second})
	require.NoError(t, err)

	assert.True(t, report.TimedOut)
	assert.Equal(t, 1, report.Visited)
	assert.Equal(t, "stl_2", report.RemainingID)
	assert.True(t, report.Rescheduled)
}

func TestSchedulerRun_NoCompanies(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	ds.On("ListAutoReconcileCompanies", mock.Anything).Return([]string{}, nil)
	ds.On("RecordAutoReconcileRun", mock.Anything, mock.MatchedBy(func(r model.AutoReconcileRun) bool {
		return r.Visited == 0 && r.FinishedAt != nil && r.Trigger == TriggerManual
	})).Return(nil)

	report, err := NewScheduler(svc, nil, fixedClock()).Run(context.Background(), RunOptions{Trigger: TriggerManual})
	require.NoError(t, err)
	assert.Zero(t, report.Visited)
	ds.AssertNotCalled(t, "GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerRun_RescheduleFailureIsReported(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	expectRunBasics(ds)
	expectCompany(ds, testCompany())
	ds.On("GetAutoReconcileCandidates", mock.Anything, mock.Anything, mock.Anything, 2).
		Return(candidates(testStatement(1, "10"), testStatement(2, "20")), nil)
	ds.On("ListReconcileModels", mock.Anything, "co_1", true).Return([]model.ReconcileModel{}, nil)
	ds.On("ClaimStatementLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	trigger := &recordingTrigger{err: errors.New("redis down")}
	report, err := NewScheduler(svc, trigger, fixedClock()).Run(context.Background(), RunOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.False(t, report.Rescheduled)
	assert.Len(t, trigger.calls, 1)
}

func TestSyncTimeLimit(t *testing.T) {
	svc, _, _ := newTestBankRec(t)
	sc := NewScheduler(svc, nil, fixedClock())

	svc.config.Reconciliation.TimeLimitSec = 0
	assert.Equal(t, 180*time.Second, sc.syncTimeLimit())

	svc.config.Reconciliation.TimeLimitSec = 3600
	assert.Equal(t, 180*time.Second, sc.syncTimeLimit())

	svc.config.Reconciliation.TimeLimitSec = 60
	assert.Equal(t, 60*time.Second, sc.syncTimeLimit())
}

func TestProcessAutoReconcileTask_ClearsPendingMarker(t *testing.T) {
	svc, ds, mr := newTestBankRec(t)
	ds.On("ListAutoReconcileCompanies", mock.Anything).Return([]string{}, nil)
	ds.On("RecordAutoReconcileRun", mock.Anything, mock.MatchedBy(func(r model.AutoReconcileRun) bool {
		return r.Trigger == TriggerPeriodic
	})).Return(nil)
	require.NoError(t, mr.Set(pendingKey(AutoReconcileJobID), "pending"))

	payload, err := json.Marshal(AutoReconcilePayload{JobID: AutoReconcileJobID, Trigger: TriggerPeriodic})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessAutoReconcileTask(context.Background(), asynq.NewTask(TypeAutoReconcile, payload)))

	assert.False(t, mr.Exists(pendingKey(AutoReconcileJobID)))
	ds.AssertExpectations(t)
}
