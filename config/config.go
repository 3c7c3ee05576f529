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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	defaultBatchSize        = 1000
	defaultLookbackMonths   = 3
	defaultSyncTimeLimitSec = 180
	defaultLineLockTTLSec   = 300
	defaultSessionTTLSec    = 3600
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"BANKREC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"BANKREC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"BANKREC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"BANKREC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"BANKREC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"BANKREC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"BANKREC_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"BANKREC_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"BANKREC_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"BANKREC_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"BANKREC_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
	ConnectRetries  uint64        `json:"connect_retries" envconfig:"BANKREC_DATA_SOURCE_CONNECT_RETRIES"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"BANKREC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"BANKREC_REDIS_SKIP_TLS_VERIFY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"BANKREC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"BANKREC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"BANKREC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"BANKREC_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type QueueConfig struct {
	AutoReconcileQueue   string `json:"auto_reconcile_queue" envconfig:"BANKREC_QUEUE_AUTO_RECONCILE"`
	AutoReconcileCron    string `json:"auto_reconcile_cron" envconfig:"BANKREC_QUEUE_AUTO_RECONCILE_CRON"`
	ScheduleSoonDelaySec int    `json:"schedule_soon_delay_sec" envconfig:"BANKREC_QUEUE_SCHEDULE_SOON_DELAY_SEC"`
	MaxRetryAttempts     int    `json:"max_retry_attempts" envconfig:"BANKREC_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort       string `json:"monitoring_port" envconfig:"BANKREC_QUEUE_MONITORING_PORT"`
}

// ReconciliationConfig tunes the balancer and the auto-reconciliation scheduler.
type ReconciliationConfig struct {
	BatchSize             int    `json:"batch_size" envconfig:"BANKREC_RECONCILIATION_BATCH_SIZE"`
	LookbackMonths        int    `json:"lookback_months" envconfig:"BANKREC_RECONCILIATION_LOOKBACK_MONTHS"`
	TimeLimitSec          int    `json:"time_limit_sec" envconfig:"BANKREC_RECONCILIATION_TIME_LIMIT_SEC"`
	SyncTimeLimitSec      int    `json:"sync_time_limit_sec" envconfig:"BANKREC_RECONCILIATION_SYNC_TIME_LIMIT_SEC"`
	LineLockTTLSec        int    `json:"line_lock_ttl_sec" envconfig:"BANKREC_RECONCILIATION_LINE_LOCK_TTL_SEC"`
	ExchangeDiffTolerance string `json:"exchange_diff_tolerance" envconfig:"BANKREC_RECONCILIATION_EXCHANGE_DIFF_TOLERANCE"`
	SessionTTLSec         int    `json:"session_ttl_sec" envconfig:"BANKREC_RECONCILIATION_SESSION_TTL_SEC"`
}

// TimeLimit is the wall-clock budget of a scheduled run. Zero means unlimited.
func (r ReconciliationConfig) TimeLimit() time.Duration {
	return time.Duration(r.TimeLimitSec) * time.Second
}

// Tolerance returns the exchange difference tolerance as a decimal.
func (r ReconciliationConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(r.ExchangeDiffTolerance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"BANKREC_PROJECT_NAME"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"BANKREC_ENABLE_TELEMETRY"`
	Server          ServerConfig         `json:"server"`
	DataSource      DataSourceConfig     `json:"data_source"`
	Redis           RedisConfig          `json:"redis"`
	Notification    Notification         `json:"notification"`
	RateLimit       RateLimitConfig      `json:"rate_limit"`
	Queue           QueueConfig          `json:"queue"`
	Reconciliation  ReconciliationConfig `json:"reconciliation"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("bankrec", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called bankrec.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Bank Reconciliation"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.DataSource.applyDefaults()
	cnf.Queue.applyDefaults()
	return cnf.Reconciliation.applyDefaults()
}

func (d *DataSourceConfig) applyDefaults() {
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = 10
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 30 * time.Minute
	}
	if d.ConnMaxIdleTime <= 0 {
		d.ConnMaxIdleTime = 5 * time.Minute
	}
}

func (q *QueueConfig) applyDefaults() {
	if q.AutoReconcileQueue == "" {
		q.AutoReconcileQueue = "auto_reconcile"
	}
	if q.AutoReconcileCron == "" {
		q.AutoReconcileCron = "@every 1h"
	}
	if q.ScheduleSoonDelaySec <= 0 {
		q.ScheduleSoonDelaySec = 5
	}
	if q.MaxRetryAttempts <= 0 {
		q.MaxRetryAttempts = 3
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
}

func (r *ReconciliationConfig) applyDefaults() error {
	if r.BatchSize <= 0 {
		r.BatchSize = defaultBatchSize
	}
	if r.LookbackMonths <= 0 {
		r.LookbackMonths = defaultLookbackMonths
	}
	if r.TimeLimitSec < 0 {
		r.TimeLimitSec = 0
	}
	if r.SyncTimeLimitSec <= 0 {
		r.SyncTimeLimitSec = defaultSyncTimeLimitSec
	}
	if r.LineLockTTLSec <= 0 {
		r.LineLockTTLSec = defaultLineLockTTLSec
	}
	if r.SessionTTLSec <= 0 {
		r.SessionTTLSec = defaultSessionTTLSec
	}
	r.ExchangeDiffTolerance = strings.TrimSpace(r.ExchangeDiffTolerance)
	if r.ExchangeDiffTolerance == "" {
		r.ExchangeDiffTolerance = "0"
	}
	tolerance, err := decimal.NewFromString(r.ExchangeDiffTolerance)
	if err != nil {
		return errors.New("reconciliation.exchange_diff_tolerance must be a decimal")
	}
	if tolerance.IsNegative() {
		return errors.New("reconciliation.exchange_diff_tolerance must not be negative")
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
