package bankrec

import (
	"context"
	"testing"

	"github.com/jerry-enebeli/bankrec/database/mocks"
	redlock "github.com/jerry-enebeli/bankrec/internal/lock"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUpdateReconciliation_PersistsAcrossRequests(t *testing.T) {
	ctx := context.Background()
	svc, ds, mr := newTestBankRec(t)
	st := testStatement(1, "1000")
	expectCompany(ds, testCompany())
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)

	r, err := svc.UpdateReconciliation(ctx, "stl_1", func(r *Reconciliation) error {
		_, err := r.AddMatchedItem(ctx, testOpenItem("itm_1", "600"))
		return err
	})
	require.NoError(t, err)
	require.Len(t, r.Lines(), 3)
	assert.True(t, mr.Exists(sessionKey("stl_1")))

	restored, err := svc.OpenReconciliation(ctx, "stl_1")
	require.NoError(t, err)
	assert.Equal(t, r.Lines(), restored.Lines())
	assert.False(t, mr.Exists(redlock.StatementLineKey("stl_1")), "lock released after update")
}

func TestUpdateReconciliation_FailedMutationIsNotSaved(t *testing.T) {
	ctx := context.Background()
	svc, ds, mr := newTestBankRec(t)
	st := testStatement(1, "1000")
	expectCompany(ds, testCompany())
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)

	_, err := svc.UpdateReconciliation(ctx, "stl_1", func(r *Reconciliation) error {
		_, err := r.RemoveLine(ctx, 7)
		return err
	})
	assert.ErrorIs(t, err, model.ErrLineNotFound)
	assert.False(t, mr.Exists(sessionKey("stl_1")))
}

func TestUpdateReconciliation_ValidateDropsSession(t *testing.T) {
	ctx := context.Background()
	svc, ds, mr := newTestBankRec(t)
	st := testStatement(1, "1000")
	expectCompany(ds, testCompany())
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)

	_, err := svc.UpdateReconciliation(ctx, "stl_1", func(r *Reconciliation) error {
		_, err := r.AddMatchedItem(ctx, testOpenItem("itm_1", "1000"))
		return err
	})
	require.NoError(t, err)
	require.True(t, mr.Exists(sessionKey("stl_1")))

	tx := new(mocks.MockJournalTx)
	ds.On("BeginPosting", mock.Anything).Return(tx, nil)
	tx.On("PostEntry", mock.Anything, mock.Anything).Return("jrn_1", nil)
	tx.On("SettleOpenItem", mock.Anything, mock.Anything).Return(nil)
	tx.On("MarkStatementReconciled", mock.Anything, "stl_1").Return(nil)
	tx.On("Commit").Return(nil)

	var res Result
	_, err = svc.UpdateReconciliation(ctx, "stl_1", func(r *Reconciliation) error {
		var err error
		res, err = r.Validate(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, res.Outcome)
	assert.False(t, mr.Exists(sessionKey("stl_1")))
}

func TestOpenReconciliation_ReconciledLine(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	st := testStatement(1, "1000")
	st.IsReconciled = true
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)

	_, err := svc.OpenReconciliation(context.Background(), "stl_1")
	assert.ErrorIs(t, err, model.ErrAlreadyReconciled)
}

func TestOpenReconciliation_UnreadableSessionIsReseeded(t *testing.T) {
	svc, ds, mr := newTestBankRec(t)
	st := testStatement(1, "1000")
	expectCompany(ds, testCompany())
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(&st, nil)
	require.NoError(t, mr.Set(sessionKey("stl_1"), "not msgpack"))

	r, err := svc.OpenReconciliation(context.Background(), "stl_1")
	require.NoError(t, err)
	assert.Len(t, r.Lines(), 2)
}
