package bankrec

import (
	"context"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
)

// invalidInput turns an ozzo validation failure into an API error the HTTP layer can render.
func invalidInput(err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return apierror.NewAPIError(apierror.ErrInvalidInput, verrs.Error(), verrs)
	}
	return err
}

func (s *BankRec) CreateCompany(ctx context.Context, company model.Company) (model.Company, error) {
	ctx, span := tracer.Start(ctx, "CreateCompany")
	defer span.End()

	if company.EarlyPayDiscountComputation == "" {
		company.EarlyPayDiscountComputation = model.EarlyPayDiscountIncluded
	}
	if err := company.Validate(); err != nil {
		return model.Company{}, invalidInput(err)
	}
	return s.datasource.CreateCompany(ctx, company)
}

func (s *BankRec) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return s.datasource.GetCompany(ctx, id)
}

func (s *BankRec) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	ctx, span := tracer.Start(ctx, "CreateAccount")
	defer span.End()

	err := validation.ValidateStruct(&account,
		validation.Field(&account.CompanyID, validation.Required),
		validation.Field(&account.Code, validation.Required),
		validation.Field(&account.Name, validation.Required),
	)
	if err != nil {
		return model.Account{}, invalidInput(err)
	}
	return s.datasource.CreateAccount(ctx, account)
}

// CreateStatementLine stores a bank statement line awaiting reconciliation.
func (s *BankRec) CreateStatementLine(ctx context.Context, line model.StatementLine) (model.StatementLine, error) {
	ctx, span := tracer.Start(ctx, "CreateStatementLine")
	defer span.End()

	if !line.HasForeignCurrency() {
		line.ForeignCurrency = ""
		line.AmountCurrency = line.Amount
	}
	if err := line.Validate(); err != nil {
		return model.StatementLine{}, invalidInput(err)
	}
	line.IsReconciled = false
	line.LastAutoCheck = nil
	return s.datasource.CreateStatementLine(ctx, line)
}

func (s *BankRec) GetStatementLine(ctx context.Context, id string) (*model.StatementLine, error) {
	return s.datasource.GetStatementLine(ctx, id)
}

// CreateOpenItem stores an unpaid receivable or payable. Residual amounts default to the booked ones.
func (s *BankRec) CreateOpenItem(ctx context.Context, item model.OpenItem) (model.OpenItem, error) {
	ctx, span := tracer.Start(ctx, "CreateOpenItem")
	defer span.End()

	if err := item.Validate(); err != nil {
		return model.OpenItem{}, invalidInput(err)
	}
	return s.datasource.CreateOpenItem(ctx, item)
}

func (s *BankRec) GetOpenItem(ctx context.Context, id string) (*model.OpenItem, error) {
	return s.datasource.GetOpenItem(ctx, id)
}

// GetTaxes loads taxes by id, in the order given.
func (s *BankRec) GetTaxes(ctx context.Context, ids []string) ([]model.Tax, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.datasource.GetTaxes(ctx, ids)
}

func (s *BankRec) CreateTax(ctx context.Context, t model.Tax) (model.Tax, error) {
	ctx, span := tracer.Start(ctx, "CreateTax")
	defer span.End()

	if err := t.Validate(); err != nil {
		return model.Tax{}, invalidInput(err)
	}
	return s.datasource.CreateTax(ctx, t)
}

// UpsertCurrencyRate records the rate of a currency for a day. The cached lookup of that day is dropped;
// later days pick the new rate up when their cache entry expires.
func (s *BankRec) UpsertCurrencyRate(ctx context.Context, rate model.CurrencyRate) error {
	ctx, span := tracer.Start(ctx, "UpsertCurrencyRate")
	defer span.End()

	err := validation.ValidateStruct(&rate,
		validation.Field(&rate.CompanyID, validation.Required),
		validation.Field(&rate.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&rate.RateDate, validation.Required),
		validation.Field(&rate.Rate, validation.By(func(interface{}) error {
			if !rate.Rate.IsPositive() {
				return errors.New("must be positive")
			}
			return nil
		})),
	)
	if err != nil {
		return invalidInput(err)
	}
	if err := s.datasource.UpsertCurrencyRate(ctx, rate); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, currency.RateCacheKey(rate.CompanyID, rate.Currency, rate.RateDate))
	}
	return nil
}

// ListAutoReconcileRuns returns the latest scheduler reports.
func (s *BankRec) ListAutoReconcileRuns(ctx context.Context, limit int) ([]model.AutoReconcileRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.datasource.ListAutoReconcileRuns(ctx, limit)
}
