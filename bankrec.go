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

package bankrec

import (
	"embed"
	"time"

	"github.com/jerry-enebeli/bankrec/balancer"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/currency"
	"github.com/jerry-enebeli/bankrec/database"
	"github.com/jerry-enebeli/bankrec/internal/cache"
	redis_db "github.com/jerry-enebeli/bankrec/internal/redis-db"
	"github.com/jerry-enebeli/bankrec/model"
	"github.com/jerry-enebeli/bankrec/tax"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("bankrec")

//go:embed sql/*.sql
var SQLFiles embed.FS

// BankRec is the bank reconciliation service. It owns the state machine sessions, the partner
// resolver, the reconcile-model engine and the auto-reconciliation scheduler.
type BankRec struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	queue      *Queue
	cache      cache.Cache
	sessions   cache.Cache
	taxes      tax.Engine
	config     *config.Configuration
	now        func() time.Time
}

// NewBankRec initializes a new instance of BankRec with the provided database datasource.
// It fetches the configuration, initializes the Redis client, the cache and the queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *BankRec: A pointer to the newly created BankRec instance.
// - error: An error if any of the initialization steps fail.
func NewBankRec(db database.IDataSource) (*BankRec, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue, err := NewQueue(configuration, redisClient.Client())
	if err != nil {
		return nil, err
	}
	return newBankRec(db, redisClient.Client(), newQueue, configuration), nil
}

func newBankRec(db database.IDataSource, client redis.UniversalClient, q *Queue, configuration *config.Configuration) *BankRec {
	return &BankRec{
		datasource: db,
		redis:      client,
		queue:      q,
		cache:      cache.NewRedisCache(client),
		sessions:   cache.NewSharedCache(client),
		taxes:      tax.NewPercentEngine(),
		config:     configuration,
		now:        time.Now,
	}
}

// Queue exposes the scheduling trigger to the worker process.
func (s *BankRec) Queue() *Queue {
	return s.queue
}

// Datasource exposes the underlying datasource to the HTTP layer.
func (s *BankRec) Datasource() database.IDataSource {
	return s.datasource
}

func (s *BankRec) converterFor(company model.Company) currency.Converter {
	return currency.NewRateService(s.datasource, s.cache, company)
}

func (s *BankRec) balancerOptions() balancer.Options {
	return balancer.Options{ExchangeDiffTolerance: s.config.Reconciliation.Tolerance()}
}
