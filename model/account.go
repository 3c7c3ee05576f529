package model

import "time"

// Account is an entry of a company's chart of accounts. Reconciliation lines reference accounts by
// AccountID; posting fails with a UserError when the account does not exist.
type Account struct {
	ID        int64     `json:"-"`
	AccountID string    `json:"account_id"`
	CompanyID string    `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
