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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/jerry-enebeli/bankrec/config"
	redis_db "github.com/jerry-enebeli/bankrec/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// TypeAutoReconcile is the asynq task type that runs one auto-reconciliation batch.
	TypeAutoReconcile = "bankrec:auto_reconcile"
	// AutoReconcileJobID identifies the auto-reconciliation job to the scheduling trigger.
	AutoReconcileJobID = "auto_reconcile"

	pendingWindowSlack = 5 * time.Minute
	enqueueRetries     = 3
)

// Queue represents a queue for handling the background jobs of the reconciliation service.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	redis     redis.UniversalClient
	config    config.QueueConfig
}

// AutoReconcilePayload is the payload of a TypeAutoReconcile task.
type AutoReconcilePayload struct {
	JobID   string `json:"job_id"`
	Trigger string `json:"trigger"`
}

// NewQueue initializes a new Queue instance with the provided configuration. The redis client holds the
// pending markers used to coalesce ScheduleSoon calls.
func NewQueue(conf *config.Configuration, client redis.UniversalClient) (*Queue, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	return newQueue(queueOptions, client, conf.Queue), nil
}

func newQueue(opt asynq.RedisConnOpt, client redis.UniversalClient, conf config.QueueConfig) *Queue {
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		redis:     client,
		config:    conf,
	}
}

func pendingKey(jobID string) string {
	return "bankrec:pending:" + jobID
}

func (q *Queue) delay() time.Duration {
	return time.Duration(q.config.ScheduleSoonDelaySec) * time.Second
}

// NewAutoReconcileTask builds the task the periodic scheduler and ScheduleSoon enqueue.
func NewAutoReconcileTask(jobID, trigger string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(AutoReconcilePayload{JobID: jobID, Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAutoReconcile, payload, opts...), nil
}

// ScheduleSoon asks for jobID to run promptly. A redis marker records that a run is pending, and calls
// made while it exists coalesce into that run. It reports whether a new task was enqueued.
func (q *Queue) ScheduleSoon(ctx context.Context, jobID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "ScheduleSoon")
	defer span.End()

	key := pendingKey(jobID)
	acquired, err := q.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), q.delay()+pendingWindowSlack).Result()
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !acquired {
		logrus.WithField("job_id", jobID).Debug("run already pending, schedule request coalesced")
		return false, nil
	}

	task, err := NewAutoReconcileTask(jobID, TriggerRescheduled,
		asynq.Queue(q.config.AutoReconcileQueue),
		asynq.ProcessIn(q.delay()),
		asynq.MaxRetry(q.config.MaxRetryAttempts))
	if err != nil {
		return false, err
	}

	enqueue := func() error {
		_, err := q.Client.EnqueueContext(ctx, task)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), enqueueRetries), ctx)
	if err := backoff.Retry(enqueue, policy); err != nil {
		span.RecordError(err)
		if delErr := q.redis.Del(ctx, key).Err(); delErr != nil {
			logrus.WithError(delErr).Warn("failed to clear pending marker")
		}
		return false, fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return true, nil
}

// ClearPending drops the pending marker of jobID. Workers call it as a job starts, so requests made
// while it runs schedule a follow-up.
func (q *Queue) ClearPending(ctx context.Context, jobID string) error {
	return q.redis.Del(ctx, pendingKey(jobID)).Err()
}

// Close releases the asynq client and inspector connections.
func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}
