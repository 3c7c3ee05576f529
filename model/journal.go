package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationLink records how much of an open item a posted statement line settled.
type ReconciliationLink struct {
	LinkID                  string          `json:"link_id"`
	StatementLineID         string          `json:"statement_line_id"`
	EntryID                 string          `json:"entry_id"`
	OpenItemID              string          `json:"open_item_id"`
	AllocatedAmountCurrency decimal.Decimal `json:"allocated_amount_currency"`
	AllocatedBalance        decimal.Decimal `json:"allocated_balance"`
	Full                    bool            `json:"full"`
	CreatedAt               time.Time       `json:"created_at"`
}

// JournalEntry is the posted result of a validated reconciliation.
type JournalEntry struct {
	EntryID         string               `json:"entry_id"`
	StatementLineID string               `json:"statement_line_id"`
	CompanyID       string               `json:"company_id"`
	Date            time.Time            `json:"date"`
	Lines           []ReconciliationLine `json:"lines"`
	CreatedAt       time.Time            `json:"created_at"`
}

// CurrencyRate is expressed as units of Currency per one unit of the company currency.
type CurrencyRate struct {
	CompanyID string          `json:"company_id"`
	Currency  string          `json:"currency"`
	RateDate  time.Time       `json:"rate_date"`
	Rate      decimal.Decimal `json:"rate"`
}

// AutoReconcileRun summarises one pass of the auto-reconciliation scheduler.
type AutoReconcileRun struct {
	RunID       string     `json:"run_id"`
	Trigger     string     `json:"trigger"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Visited     int        `json:"visited"`
	Reconciled  int        `json:"reconciled"`
	Skipped     int        `json:"skipped"`
	RemainingID string     `json:"remaining_id,omitempty"`
	Rescheduled bool       `json:"rescheduled"`
	TimedOut    bool       `json:"timed_out"`
}
