package pgconn

import (
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jerry-enebeli/bankrec/config"
	_ "github.com/lib/pq" // Import the postgres driver
	"github.com/sirupsen/logrus"
)

// ConnectDB opens a pooled postgres connection and pings it, retrying the ping with exponential
// backoff up to cfg.ConnectRetries times.
func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	if cfg.Dns == "" {
		return nil, errors.New("data source DNS is required")
	}
	db, err := sql.Open("postgres", cfg.Dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	err = backoff.RetryNotify(db.Ping, backoff.WithMaxRetries(policy, cfg.ConnectRetries),
		func(err error, wait time.Duration) {
			logrus.WithError(err).Warnf("database not reachable, retrying in %s", wait)
		})
	if err != nil {
		logrus.WithError(err).Error("database connection error")
		_ = db.Close()
		return nil, err
	}

	logrus.Info("database connection established")
	return db, nil
}
