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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// AddMatchedItem is the body of POST /statement-lines/:id/reconciliation/matched-items.
type AddMatchedItem struct {
	ItemID string `json:"item_id"`
	// Full matches the whole open amount even when it exceeds what the statement line leaves open.
	Full bool `json:"full"`
}

// AddManualLine is the body of POST /statement-lines/:id/reconciliation/lines.
type AddManualLine struct {
	AccountID      string           `json:"account_id"`
	PartnerID      string           `json:"partner_id"`
	Label          string           `json:"label"`
	Currency       string           `json:"currency"`
	AmountCurrency decimal.Decimal  `json:"amount_currency"`
	Balance        *decimal.Decimal `json:"balance"`
	TaxIDs         []string         `json:"tax_ids"`
	TaxIncluded    bool             `json:"tax_included"`
}

// EditLine is the body of PATCH /statement-lines/:id/reconciliation/lines/:index. Value carries text
// fields, Amount the balance and amount_currency fields, TaxIDs the taxes field.
type EditLine struct {
	Field  string          `json:"field"`
	Value  string          `json:"value"`
	Amount decimal.Decimal `json:"amount"`
	TaxIDs []string        `json:"tax_ids"`
}

// ScheduleAutoReconcile is the body of POST /auto-reconcile/schedule.
type ScheduleAutoReconcile struct {
	JobID string `json:"job_id"`
}

var editableFields = []interface{}{"account", "partner", "label", "balance", "amount_currency", "taxes"}

func (m *AddMatchedItem) ValidateAddMatchedItem() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.ItemID, validation.Required),
	)
}

func (m *AddManualLine) ValidateAddManualLine() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.AccountID, validation.Required),
		validation.Field(&m.Currency, validation.When(m.Currency != "", validation.Length(3, 3))),
		validation.Field(&m.AmountCurrency, validation.By(func(interface{}) error {
			if m.AmountCurrency.IsZero() && (m.Balance == nil || m.Balance.IsZero()) {
				return errors.New("amount_currency or balance is required")
			}
			return nil
		})),
	)
}

func (e *EditLine) ValidateEditLine() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Field, validation.Required, validation.In(editableFields...)),
		validation.Field(&e.Value, validation.When(e.Field == "account", validation.Required)),
	)
}
