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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/jerry-enebeli/bankrec"
	"github.com/jerry-enebeli/bankrec/config"
	"github.com/jerry-enebeli/bankrec/internal/notification"
	redis_db "github.com/jerry-enebeli/bankrec/internal/redis-db"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func redisConnOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{conf.Queue.AutoReconcileQueue: 1}
}

// Concurrency stays at one: two overlapping batches would only contend for the same line locks.
func initializeWorkerServer(opt asynq.RedisClientOpt, queues map[string]int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logrus.WithField("task", task.Type()).WithError(err).Error("task failed")
		}),
	})
}

func initializeTaskHandlers(b *bankrecInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(bankrec.TypeAutoReconcile, b.bankrec.ProcessAutoReconcileTask)
}

// initializeScheduler registers the periodic auto-reconciliation job.
func initializeScheduler(opt asynq.RedisClientOpt, conf *config.Configuration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			notification.NotifyError(fmt.Errorf("enqueue %s: %w", task.Type(), err))
		},
	})

	task, err := bankrec.NewAutoReconcileTask(bankrec.AutoReconcileJobID, bankrec.TriggerPeriodic)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(conf.Queue.AutoReconcileCron, task,
		asynq.Queue(conf.Queue.AutoReconcileQueue),
		asynq.MaxRetry(conf.Queue.MaxRetryAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("registering auto-reconcile job: %w", err)
	}
	logrus.Infof("auto-reconcile scheduled with %q (entry %s)", conf.Queue.AutoReconcileCron, entryID)
	return scheduler, nil
}

// workerCommands defines the "workers" command: the auto-reconcile task server, its periodic
// scheduler and the asynqmon dashboard.
func workerCommands(b *bankrecInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start bankrec workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := b.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			opt, err := redisConnOpt(conf)
			if err != nil {
				log.Fatal(err)
			}

			srv := initializeWorkerServer(opt, initializeQueues(conf))
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			scheduler, err := initializeScheduler(opt, conf)
			if err != nil {
				log.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: opt,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
