package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/internal/cache"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// RateStore returns the latest rate of a currency on or before a date.
type RateStore interface {
	GetRate(ctx context.Context, companyID, currency string, date time.Time) (*model.CurrencyRate, error)
}

const rateCacheTTL = 30 * time.Minute

// RateCacheKey is the cache key of the rate looked up for one currency on one day.
func RateCacheKey(companyID, currency string, date time.Time) string {
	return fmt.Sprintf("rate:%s:%s:%s", companyID, currency, date.Format("2006-01-02"))
}

// RateService converts amounts with the rate table of one company.
// Rates are stored as units of currency per one unit of the company currency.
type RateService struct {
	store   RateStore
	cache   cache.Cache
	company model.Company
}

// NewRateService builds a converter for a company. The cache is optional.
func NewRateService(store RateStore, c cache.Cache, company model.Company) *RateService {
	return &RateService{store: store, cache: c, company: company}
}

// Convert converts amount from one currency to another at date. Both sides go through the company
// currency, so a conversion between two foreign currencies is still a single rate lookup per side.
// A missing or non-positive rate yields a *model.DegenerateRateWarning.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	ctx, span := otel.Tracer("bankrec.currency").Start(ctx, "Convert")
	defer span.End()

	if from == to {
		return Round(amount, to), nil
	}
	fromRate, err := s.rate(ctx, from, date)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := s.rate(ctx, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	if !fromRate.IsPositive() || !toRate.IsPositive() {
		return decimal.Zero, &model.DegenerateRateWarning{From: from, To: to, Date: date}
	}
	return Round(amount.Mul(toRate).Div(fromRate), to), nil
}

func (s *RateService) rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == s.company.Currency {
		return decimal.NewFromInt(1), nil
	}

	key := RateCacheKey(s.company.CompanyID, currency, date)
	if s.cache != nil {
		var cached string
		err := s.cache.Get(ctx, key, &cached)
		if err == nil && cached != "" {
			if r, err := decimal.NewFromString(cached); err == nil {
				return r, nil
			}
		} else if err != nil && !errors.Is(err, cache.ErrMiss) {
			logrus.WithError(err).Warn("rate cache lookup failed")
		}
	}

	r, err := s.store.GetRate(ctx, s.company.CompanyID, currency, date)
	if apierror.IsNotFound(err) {
		r, err = nil, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if r == nil {
		return decimal.Zero, &model.DegenerateRateWarning{From: currency, To: s.company.Currency, Date: date}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, r.Rate.String(), rateCacheTTL); err != nil {
			logrus.WithError(err).Warn("rate cache store failed")
		}
	}
	return r.Rate, nil
}
