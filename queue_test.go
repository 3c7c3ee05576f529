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
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSoon_EnqueuesDelayedTask(t *testing.T) {
	svc, _, mr := newTestBankRec(t)
	q := svc.Queue()

	enqueued, err := q.ScheduleSoon(context.Background(), AutoReconcileJobID)
	require.NoError(t, err)
	assert.True(t, enqueued)
	assert.True(t, mr.Exists(pendingKey(AutoReconcileJobID)))

	tasks, err := q.Inspector.ListScheduledTasks("auto_reconcile")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TypeAutoReconcile, tasks[0].Type)
	assert.Equal(t, 3, tasks[0].MaxRetry)

	var payload AutoReconcilePayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &payload))
	assert.Equal(t, AutoReconcilePayload{JobID: AutoReconcileJobID, Trigger: TriggerRescheduled}, payload)
}

func TestScheduleSoon_CoalescesWhilePending(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestBankRec(t)
	q := svc.Queue()

	first, err := q.ScheduleSoon(ctx, AutoReconcileJobID)
	require.NoError(t, err)
	second, err := q.ScheduleSoon(ctx, AutoReconcileJobID)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	tasks, err := q.Inspector.ListScheduledTasks("auto_reconcile")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, q.ClearPending(ctx, AutoReconcileJobID))
	third, err := q.ScheduleSoon(ctx, AutoReconcileJobID)
	require.NoError(t, err)
	assert.True(t, third, "a run that started clears the way for a follow-up")
}

func TestScheduleSoon_RedisUnavailable(t *testing.T) {
	svc, _, mr := newTestBankRec(t)
	mr.Close()

	enqueued, err := svc.Queue().ScheduleSoon(context.Background(), AutoReconcileJobID)
	assert.Error(t, err)
	assert.False(t, enqueued)
}

func TestNewAutoReconcileTask(t *testing.T) {
	task, err := NewAutoReconcileTask(AutoReconcileJobID, TriggerPeriodic, asynq.Queue("auto_reconcile"))
	require.NoError(t, err)
	assert.Equal(t, TypeAutoReconcile, task.Type())

	var payload AutoReconcilePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, TriggerPeriodic, payload.Trigger)
}
