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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/database/mocks"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type TestRequest struct {
	Payload     io.Reader
	Router      *gin.Engine
	Response    interface{}
	Method      string
	Route       string
	ContentType string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	if s.ContentType == "" {
		s.ContentType = "application/json"
	}
	req.Header.Set("Content-Type", s.ContentType)
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body.Bytes(), s.Response); err != nil {
		return resp, err
	}
	return resp, nil
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

var stDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		ProjectName: "bankrec",
		Redis:       config.RedisConfig{Dns: mr.Addr()},
		DataSource:  config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/bankrec?sslmode=disable"},
		Queue: config.QueueConfig{
			AutoReconcileQueue:   "auto_reconcile",
			ScheduleSoonDelaySec: 5,
			MaxRetryAttempts:     3,
		},
		Reconciliation: config.ReconciliationConfig{
			BatchSize:             1000,
			LookbackMonths:        3,
			SyncTimeLimitSec:      180,
			LineLockTTLSec:        300,
			ExchangeDiffTolerance: "0",
			SessionTTLSec:         3600,
		},
	})

	ds := new(mocks.MockDataSource)
	svc, err := bankrec.NewBankRec(ds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Queue().Close() })

	a := NewAPI(svc)
	require.NotNil(t, a)
	return a.Router(), ds, mr
}

func testCompany() *model.Company {
	return &model.Company{
		CompanyID:                   "co_1",
		Name:                        gofakeit.Company(),
		Currency:                    "USD",
		SuspenseAccountID:           "suspense",
		EarlyPayDiscountComputation: model.EarlyPayDiscountIncluded,
	}
}

func testStatement() *model.StatementLine {
	return &model.StatementLine{
		ID:                 1,
		StatementLineID:    "stl_1",
		CompanyID:          "co_1",
		JournalID:          "bank_journal",
		LiquidityAccountID: "bank",
		Date:               stDate,
		Currency:           "USD",
		Amount:             d("1000"),
		AmountCurrency:     d("1000"),
		PaymentRef:         "Payment INV/2024/0001",
	}
}

func testOpenItem() *model.OpenItem {
	return &model.OpenItem{
		ItemID:                 "itm_1",
		CompanyID:              "co_1",
		PartnerID:              "ptn_1",
		AccountID:              "receivable",
		Currency:               "USD",
		AmountCurrency:         d("1000"),
		Balance:                d("1000"),
		OriginalAmountCurrency: d("1000"),
		OriginalBalance:        d("1000"),
		Date:                   stDate.AddDate(0, 0, -10),
		Reference:              "INV/2024/0001",
	}
}

func expectSessionLine(ds *mocks.MockDataSource) {
	ds.On("GetStatementLine", mock.Anything, "stl_1").Return(testStatement(), nil)
	ds.On("GetCompany", mock.Anything, "co_1").Return(testCompany(), nil)
}

func TestCreateCompany_InvalidInput(t *testing.T) {
	router, ds, _ := setupRouter(t)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"name": "Acme", "currency": "DOLLARS"}),
		Router:   router,
		Response: &response,
		Method:   "POST",
		Route:    "/companies",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(apierror.ErrInvalidInput), response["code"])
	ds.AssertNotCalled(t, "CreateCompany", mock.Anything, mock.Anything)
}

func TestGetStatementLine_NotFound(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("GetStatementLine", mock.Anything, "stl_404").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "statement line with ID 'stl_404' not found", nil))

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: "GET", Route: "/statement-lines/stl_404"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestReconciliationSession_MatchAndValidate(t *testing.T) {
	router, ds, mr := setupRouter(t)
	expectSessionLine(ds)
	ds.On("GetOpenItem", mock.Anything, "itm_1").Return(testOpenItem(), nil)

	var view reconciliationView
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &view, Method: "POST", Route: "/statement-lines/stl_1/reconciliation"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, bankrec.StateValid, view.State)
	assert.Len(t, view.Lines, 2, "liquidity and suspense")

	view = reconciliationView{}
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"item_id": "itm_1"}),
		Router:   router,
		Response: &view,
		Method:   "POST",
		Route:    "/statement-lines/stl_1/reconciliation/matched-items",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, model.FlagMatchedItem, view.Lines[1].Kind())
	assert.True(t, mr.Exists("bankrec:session:stl_1"))

	resp, err = SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]string{"item_id": "itm_1"}),
		Router:  router,
		Method:  "POST",
		Route:   "/statement-lines/stl_1/reconciliation/matched-items",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)

	tx := new(mocks.MockJournalTx)
	ds.On("BeginPosting", mock.Anything).Return(tx, nil)
	tx.On("PostEntry", mock.Anything, mock.Anything).Return("jrn_1", nil)
	tx.On("SettleOpenItem", mock.Anything, mock.Anything).Return(nil)
	tx.On("MarkStatementReconciled", mock.Anything, "stl_1").Return(nil)
	tx.On("Commit").Return(nil)

	view = reconciliationView{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &view, Method: "POST", Route: "/statement-lines/stl_1/reconciliation/validate"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, bankrec.StateReconciled, view.State)
	require.NotNil(t, view.Result)
	assert.Equal(t, "jrn_1", view.Result.EntryID)
	assert.False(t, mr.Exists("bankrec:session:stl_1"))
}

func TestReconciliationSession_ForeignOrSettledItemIsRejected(t *testing.T) {
	router, ds, _ := setupRouter(t)
	expectSessionLine(ds)

	other := testOpenItem()
	other.ItemID = "itm_other"
	other.CompanyID = "co_2"
	settled := testOpenItem()
	settled.ItemID = "itm_done"
	settled.Reconciled = true
	ds.On("GetOpenItem", mock.Anything, "itm_other").Return(other, nil)
	ds.On("GetOpenItem", mock.Anything, "itm_done").Return(settled, nil)

	for _, id := range []string{"itm_other", "itm_done"} {
		var response map[string]interface{}
		resp, err := SetUpTestRequest(TestRequest{
			Payload:  jsonBody(t, map[string]string{"item_id": id}),
			Router:   router,
			Response: &response,
			Method:   "POST",
			Route:    "/statement-lines/stl_1/reconciliation/matched-items",
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Code, id)
		assert.Equal(t, string(apierror.ErrBadRequest), response["code"], id)
	}

	var view reconciliationView
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &view, Method: "POST", Route: "/statement-lines/stl_1/reconciliation"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	for _, l := range view.Lines {
		assert.NotEqual(t, model.FlagMatchedItem, l.Kind())
	}
}

func TestReconciliationSession_EditLiquidityIsRejected(t *testing.T) {
	router, ds, _ := setupRouter(t)
	expectSessionLine(ds)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]string{"field": "label", "value": "renamed"}),
		Router:  router,
		Method:  "PATCH",
		Route:   "/statement-lines/stl_1/reconciliation/lines/0",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: "DELETE", Route: "/statement-lines/stl_1/reconciliation/lines/abc"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateReconcileModel_RunsAutoReconcile(t *testing.T) {
	router, ds, _ := setupRouter(t)
	m := model.ReconcileModel{
		ModelID:       "rcm_inv",
		CompanyID:     "co_1",
		Name:          "Invoices",
		Sequence:      10,
		RuleType:      model.RuleInvoiceMatching,
		AutoReconcile: true,
		Active:        true,
	}
	ds.On("CreateReconcileModel", mock.Anything, mock.Anything).Return(m, nil)
	ds.On("ListAutoReconcileCompanies", mock.Anything).Return([]string{}, nil)
	ds.On("RecordAutoReconcileRun", mock.Anything, mock.MatchedBy(func(r model.AutoReconcileRun) bool {
		return r.Trigger == bankrec.TriggerSync
	})).Return(nil)

	var response reconcileModelResponse
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, m),
		Router:   router,
		Response: &response,
		Method:   "POST",
		Route:    "/reconcile-models",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "rcm_inv", response.ModelID)
	require.NotNil(t, response.AutoReconcileRun)
	assert.Equal(t, bankrec.TriggerSync, response.AutoReconcileRun.Trigger)
	ds.AssertExpectations(t)
}

func TestCreateReconcileModel_ManualModelSkipsRun(t *testing.T) {
	router, ds, _ := setupRouter(t)
	m := model.ReconcileModel{
		ModelID:   "rcm_btn",
		CompanyID: "co_1",
		Name:      "Write off",
		RuleType:  model.RuleWriteoffButton,
		Active:    true,
		Lines:     []model.ModelLine{{AccountID: "misc", AmountType: model.AmountPercentage, Amount: d("100")}},
	}
	ds.On("CreateReconcileModel", mock.Anything, mock.Anything).Return(m, nil)

	var response reconcileModelResponse
	resp, err := SetUpTestRequest(TestRequest{Payload: jsonBody(t, m), Router: router, Response: &response, Method: "POST", Route: "/reconcile-models"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Nil(t, response.AutoReconcileRun)
	ds.AssertNotCalled(t, "ListAutoReconcileCompanies", mock.Anything)
}

func TestScheduleAutoReconcile_Coalesces(t *testing.T) {
	router, _, _ := setupRouter(t)

	var first, second map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &first, Method: "POST", Route: "/auto-reconcile/schedule"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, true, first["enqueued"])

	_, err = SetUpTestRequest(TestRequest{Router: router, Response: &second, Method: "POST", Route: "/auto-reconcile/schedule"})
	require.NoError(t, err)
	assert.Equal(t, false, second["enqueued"])
}

func TestImportStatementLines_Upload(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("CreateStatementLine", mock.Anything, mock.MatchedBy(func(l model.StatementLine) bool {
		return l.CompanyID == "co_1" && l.JournalID == "bank_journal"
	})).Return(model.StatementLine{}, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{"company_id": "co_1", "journal_id": "bank_journal", "liquidity_account_id": "bank", "currency": "USD"} {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader("date,amount,payment_ref\n2024-03-15,10,Fee refund\n2024-03-16,-4,Card\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var result bankrec.ImportResult
	resp, err := SetUpTestRequest(TestRequest{
		Payload:     &body,
		Router:      router,
		Response:    &result,
		Method:      "POST",
		Route:       "/statement-lines/import",
		ContentType: w.FormDataContentType(),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, result.Imported)
}
