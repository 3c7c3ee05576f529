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
package mocks

import (
	"context"
	"time"

	"github.com/jerry-enebeli/bankrec/database"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Company methods

func (m *MockDataSource) CreateCompany(ctx context.Context, company model.Company) (model.Company, error) {
	args := m.Called(ctx, company)
	return args.Get(0).(model.Company), args.Error(1)
}

func (m *MockDataSource) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

// Account methods

func (m *MockDataSource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockDataSource) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

// Partner methods

func (m *MockDataSource) CreatePartner(ctx context.Context, partner model.Partner) (model.Partner, error) {
	args := m.Called(ctx, partner)
	return args.Get(0).(model.Partner), args.Error(1)
}

func (m *MockDataSource) GetPartner(ctx context.Context, id string) (*model.Partner, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Partner), args.Error(1)
}

func (m *MockDataSource) AddPartnerBankAccount(ctx context.Context, account model.PartnerBankAccount) (model.PartnerBankAccount, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(model.PartnerBankAccount), args.Error(1)
}

func (m *MockDataSource) FindPartnersByBankAccount(ctx context.Context, companyID, sanitizedNumber string) ([]model.Partner, error) {
	args := m.Called(ctx, companyID, sanitizedNumber)
	return args.Get(0).([]model.Partner), args.Error(1)
}

func (m *MockDataSource) SearchPartnersByName(ctx context.Context, companyID, normalizedName string, limit int) ([]model.Partner, error) {
	args := m.Called(ctx, companyID, normalizedName, limit)
	return args.Get(0).([]model.Partner), args.Error(1)
}

// Statement line methods

func (m *MockDataSource) CreateStatementLine(ctx context.Context, line model.StatementLine) (model.StatementLine, error) {
	args := m.Called(ctx, line)
	return args.Get(0).(model.StatementLine), args.Error(1)
}

func (m *MockDataSource) GetStatementLine(ctx context.Context, id string) (*model.StatementLine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatementLine), args.Error(1)
}

func (m *MockDataSource) GetAutoReconcileCandidates(ctx context.Context, since time.Time, companyIDs []string, limit int) ([]model.StatementLine, error) {
	args := m.Called(ctx, since, companyIDs, limit)
	return args.Get(0).([]model.StatementLine), args.Error(1)
}

func (m *MockDataSource) ClaimStatementLine(ctx context.Context, id int64, previous *time.Time, now time.Time) (bool, error) {
	args := m.Called(ctx, id, previous, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SetStatementLinePartner(ctx context.Context, id, partnerID string) error {
	args := m.Called(ctx, id, partnerID)
	return args.Error(0)
}

// Open item methods

func (m *MockDataSource) CreateOpenItem(ctx context.Context, item model.OpenItem) (model.OpenItem, error) {
	args := m.Called(ctx, item)
	return args.Get(0).(model.OpenItem), args.Error(1)
}

func (m *MockDataSource) GetOpenItem(ctx context.Context, id string) (*model.OpenItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OpenItem), args.Error(1)
}

func (m *MockDataSource) ListOpenItems(ctx context.Context, query model.OpenItemQuery) ([]model.OpenItem, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]model.OpenItem), args.Error(1)
}

// Reconcile model methods

func (m *MockDataSource) CreateReconcileModel(ctx context.Context, rm model.ReconcileModel) (model.ReconcileModel, error) {
	args := m.Called(ctx, rm)
	return args.Get(0).(model.ReconcileModel), args.Error(1)
}

func (m *MockDataSource) GetReconcileModel(ctx context.Context, id string) (*model.ReconcileModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconcileModel), args.Error(1)
}

func (m *MockDataSource) ListReconcileModels(ctx context.Context, companyID string, activeOnly bool) ([]model.ReconcileModel, error) {
	args := m.Called(ctx, companyID, activeOnly)
	return args.Get(0).([]model.ReconcileModel), args.Error(1)
}

func (m *MockDataSource) UpdateReconcileModel(ctx context.Context, rm model.ReconcileModel) (model.ReconcileModel, error) {
	args := m.Called(ctx, rm)
	return args.Get(0).(model.ReconcileModel), args.Error(1)
}

func (m *MockDataSource) DeleteReconcileModel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ListAutoReconcileCompanies(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

// Tax and rate methods

func (m *MockDataSource) CreateTax(ctx context.Context, t model.Tax) (model.Tax, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Tax), args.Error(1)
}

func (m *MockDataSource) GetTaxes(ctx context.Context, ids []string) ([]model.Tax, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]model.Tax), args.Error(1)
}

func (m *MockDataSource) UpsertCurrencyRate(ctx context.Context, rate model.CurrencyRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockDataSource) GetRate(ctx context.Context, companyID, currency string, date time.Time) (*model.CurrencyRate, error) {
	args := m.Called(ctx, companyID, currency, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CurrencyRate), args.Error(1)
}

// Journal methods

func (m *MockDataSource) BeginPosting(ctx context.Context) (database.JournalTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.JournalTx), args.Error(1)
}

func (m *MockDataSource) GetJournalEntry(ctx context.Context, statementLineID string) (*model.JournalEntry, error) {
	args := m.Called(ctx, statementLineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JournalEntry), args.Error(1)
}

func (m *MockDataSource) ListReconciliationLinks(ctx context.Context, statementLineID string) ([]model.ReconciliationLink, error) {
	args := m.Called(ctx, statementLineID)
	return args.Get(0).([]model.ReconciliationLink), args.Error(1)
}

// Run report methods

func (m *MockDataSource) RecordAutoReconcileRun(ctx context.Context, run model.AutoReconcileRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDataSource) ListAutoReconcileRuns(ctx context.Context, limit int) ([]model.AutoReconcileRun, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]model.AutoReconcileRun), args.Error(1)
}

// MockJournalTx is a mock implementation of database.JournalTx
type MockJournalTx struct {
	mock.Mock
}

func (m *MockJournalTx) PostEntry(ctx context.Context, entry model.JournalEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *MockJournalTx) SettleOpenItem(ctx context.Context, link model.ReconciliationLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockJournalTx) MarkStatementReconciled(ctx context.Context, statementLineID string) error {
	args := m.Called(ctx, statementLineID)
	return args.Error(0)
}

func (m *MockJournalTx) Commit() error {
	return m.Called().Error(0)
}

func (m *MockJournalTx) Rollback() error {
	return m.Called().Error(0)
}

var _ database.IDataSource = (*MockDataSource)(nil)
