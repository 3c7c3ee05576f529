package bankrec

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/hibiken/asynq"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/database/mocks"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	testNow = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	stDate  = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig() *config.Configuration {
	return &config.Configuration{
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
	}
}

// newTestBankRec wires the service to a mocked datasource and an in-memory redis.
func newTestBankRec(t *testing.T) (*BankRec, *mocks.MockDataSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := testConfig()
	q := newQueue(asynq.RedisClientOpt{Addr: mr.Addr()}, client, cfg.Queue)
	t.Cleanup(func() {
		_ = q.Close()
		_ = client.Close()
	})

	ds := new(mocks.MockDataSource)
	svc := newBankRec(ds, client, q, cfg)
	svc.now = func() time.Time { return testNow }
	return svc, ds, mr
}

func testCompany() model.Company {
	return model.Company{
		CompanyID:                   "co_1",
		Name:                        gofakeit.Company(),
		Currency:                    "USD",
		SuspenseAccountID:           "suspense",
		IncomeExchangeAccountID:     "fx_income",
		ExpenseExchangeAccountID:    "fx_expense",
		EarlyPayDiscountLossAccount: "ep_loss",
		EarlyPayDiscountGainAccount: "ep_gain",
		EarlyPayDiscountComputation: model.EarlyPayDiscountIncluded,
	}
}

func testStatement(id int64, amount string) model.StatementLine {
	return model.StatementLine{
		ID:                 id,
		StatementLineID:    "stl_" + decimal.NewFromInt(id).String(),
		CompanyID:          "co_1",
		JournalID:          "bank_journal",
		LiquidityAccountID: "bank",
		Date:               stDate,
		Currency:           "USD",
		Amount:             d(amount),
		AmountCurrency:     d(amount),
		PaymentRef:         "Payment INV/2024/0001",
	}
}

func testOpenItem(id, amount string) model.OpenItem {
	return model.OpenItem{
		ItemID:                 id,
		CompanyID:              "co_1",
		PartnerID:              "ptn_1",
		AccountID:              "receivable",
		Currency:               "USD",
		AmountCurrency:         d(amount),
		Balance:                d(amount),
		OriginalAmountCurrency: d(amount),
		OriginalBalance:        d(amount),
		Date:                   stDate.AddDate(0, 0, -10),
		Reference:              "INV/2024/0001",
	}
}

func expectCompany(ds *mocks.MockDataSource, company model.Company) {
	ds.On("GetCompany", mock.Anything, company.CompanyID).Return(&company, nil)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "emile dupont", NormalizeName("  Émile   DUPONT "))
	assert.Equal(t, "societe generale", NormalizeName("Société Générale"))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestQueueAccessor(t *testing.T) {
	svc, _, _ := newTestBankRec(t)
	assert.NotNil(t, svc.Queue())
	assert.NotNil(t, svc.Datasource())
}
