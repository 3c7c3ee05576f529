package model

import "time"

type Partner struct {
	ID             int64     `json:"-"`
	PartnerID      string    `json:"partner_id"`
	CompanyID      string    `json:"company_id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type PartnerBankAccount struct {
	BankAccountID   string    `json:"bank_account_id"`
	PartnerID       string    `json:"partner_id"`
	CompanyID       string    `json:"company_id"`
	AccountNumber   string    `json:"account_number"`
	SanitizedNumber string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
