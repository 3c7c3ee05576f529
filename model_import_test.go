package bankrec

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestImportReconcileModels(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	f, err := os.Open("testdata/models.yaml")
	require.NoError(t, err)
	defer f.Close()

	existing := invoiceModel()
	ds.On("GetReconcileModel", mock.Anything, "rcm_inv").Return(&existing, nil)
	ds.On("UpdateReconcileModel", mock.Anything, mock.MatchedBy(func(m model.ReconcileModel) bool {
		return m.ModelID == "rcm_inv" && m.PaymentTolerance != nil && m.PaymentTolerance.Param.Equal(d("2"))
	})).Return(existing, nil)
	ds.On("CreateReconcileModel", mock.Anything, mock.MatchedBy(func(m model.ReconcileModel) bool {
		return m.Name == "Bank fees" && len(m.Lines) == 1 && m.Lines[0].Amount.Equal(d("100"))
	})).Return(bankFeesModel(), nil)

	stored, err := svc.ImportReconcileModels(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	ds.AssertExpectations(t)
}

func TestImportReconcileModels_UnknownIDIsCreated(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	doc := `
models:
  - model_id: rcm_new
    company_id: co_1
    name: Invoices
    rule_type: invoice_matching
    active: true
`
	ds.On("GetReconcileModel", mock.Anything, "rcm_new").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "reconcile model not found", nil))
	ds.On("CreateReconcileModel", mock.Anything, mock.Anything).Return(invoiceModel(), nil)

	_, err := svc.ImportReconcileModels(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	ds.AssertExpectations(t)
}

func TestImportReconcileModels_ValidatesBeforeStoring(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	f, err := os.Open("testdata/models_invalid.yaml")
	require.NoError(t, err)
	defer f.Close()

	_, err = svc.ImportReconcileModels(context.Background(), f)
	assertInvalidInput(t, err)
	ds.AssertNotCalled(t, "CreateReconcileModel", mock.Anything, mock.Anything)
}

func TestImportReconcileModels_RejectsUnknownFields(t *testing.T) {
	svc, _, _ := newTestBankRec(t)

	_, err := svc.ImportReconcileModels(context.Background(), strings.NewReader("models:\n  - colour: red\n"))
	assertInvalidInput(t, err)

	_, err = svc.ImportReconcileModels(context.Background(), strings.NewReader("models: []\n"))
	assertInvalidInput(t, err)
}

func TestImportReconcileModels_LookupFailure(t *testing.T) {
	svc, ds, _ := newTestBankRec(t)
	doc := "models:\n  - model_id: rcm_inv\n    company_id: co_1\n    name: Invoices\n    rule_type: invoice_matching\n"
	ds.On("GetReconcileModel", mock.Anything, "rcm_inv").Return(nil, errors.New("connection reset"))

	stored, err := svc.ImportReconcileModels(context.Background(), strings.NewReader(doc))
	require.Error(t, err)
	assert.Empty(t, stored)
}
