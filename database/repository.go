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

package database

import (
	"context"
	"time"

	"github.com/jerry-enebeli/bankrec/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	company          // Interface for company settings
	account          // Interface for chart-of-accounts operations
	partner          // Interface for partner and bank account operations
	statementLine    // Interface for bank statement line operations
	openItem         // Interface for the open-item source
	reconcileModel   // Interface for matching-rule operations
	tax              // Interface for tax definitions
	currencyRate     // Interface for the rate table
	journal          // Interface for the posting boundary
	autoReconcileRun // Interface for scheduler run reports
}

type company interface {
	CreateCompany(ctx context.Context, company model.Company) (model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
}

type account interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

// partner defines methods for partners and their registered bank accounts.
type partner interface {
	CreatePartner(ctx context.Context, partner model.Partner) (model.Partner, error)
	GetPartner(ctx context.Context, id string) (*model.Partner, error)
	AddPartnerBankAccount(ctx context.Context, account model.PartnerBankAccount) (model.PartnerBankAccount, error)
	FindPartnersByBankAccount(ctx context.Context, companyID, sanitizedNumber string) ([]model.Partner, error) // Distinct partners owning the number
	SearchPartnersByName(ctx context.Context, companyID, normalizedName string, limit int) ([]model.Partner, error)
}

// statementLine defines methods for bank statement lines.
type statementLine interface {
	CreateStatementLine(ctx context.Context, line model.StatementLine) (model.StatementLine, error)
	GetStatementLine(ctx context.Context, id string) (*model.StatementLine, error)
	GetAutoReconcileCandidates(ctx context.Context, since time.Time, companyIDs []string, limit int) ([]model.StatementLine, error) // Unreconciled lines, never-checked first
	ClaimStatementLine(ctx context.Context, id int64, previous *time.Time, now time.Time) (bool, error)                               // Stamps last_auto_check if nobody else did
	SetStatementLinePartner(ctx context.Context, id, partnerID string) error
}

// openItem defines the open-item source queried by matching.
type openItem interface {
	CreateOpenItem(ctx context.Context, item model.OpenItem) (model.OpenItem, error)
	GetOpenItem(ctx context.Context, id string) (*model.OpenItem, error)
	ListOpenItems(ctx context.Context, query model.OpenItemQuery) ([]model.OpenItem, error)
}

// reconcileModel defines methods for handling matching rules.
type reconcileModel interface {
	CreateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error)
	GetReconcileModel(ctx context.Context, id string) (*model.ReconcileModel, error)
	ListReconcileModels(ctx context.Context, companyID string, activeOnly bool) ([]model.ReconcileModel, error)
	UpdateReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error)
	DeleteReconcileModel(ctx context.Context, id string) error
	ListAutoReconcileCompanies(ctx context.Context) ([]string, error) // Companies with an active unattended model
}

type tax interface {
	CreateTax(ctx context.Context, t model.Tax) (model.Tax, error)
	GetTaxes(ctx context.Context, ids []string) ([]model.Tax, error)
}

type currencyRate interface {
	UpsertCurrencyRate(ctx context.Context, rate model.CurrencyRate) error
	GetRate(ctx context.Context, companyID, currency string, date time.Time) (*model.CurrencyRate, error) // Latest rate on or before date
}

// journal is the posting boundary of a validated reconciliation.
type journal interface {
	BeginPosting(ctx context.Context) (JournalTx, error)
	GetJournalEntry(ctx context.Context, statementLineID string) (*model.JournalEntry, error)
	ListReconciliationLinks(ctx context.Context, statementLineID string) ([]model.ReconciliationLink, error)
}

type autoReconcileRun interface {
	RecordAutoReconcileRun(ctx context.Context, run model.AutoReconcileRun) error
	ListAutoReconcileRuns(ctx context.Context, limit int) ([]model.AutoReconcileRun, error)
}
