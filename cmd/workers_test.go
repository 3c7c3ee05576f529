package main

import (
	"context"
	"testing"

	"github.com/jerry-enebeli/bankrec/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeQueues(t *testing.T) {
	conf := &config.Configuration{Queue: config.QueueConfig{AutoReconcileQueue: "auto_reconcile"}}
	assert.Equal(t, map[string]int{"auto_reconcile": 1}, initializeQueues(conf))
}

func TestRedisConnOpt(t *testing.T) {
	conf := &config.Configuration{Redis: config.RedisConfig{Dns: "redis://:secret@localhost:6379/2"}}
	opt, err := redisConnOpt(conf)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
}

func TestInitializeObservabilityDisabled(t *testing.T) {
	shutdown, err := initializeObservability(context.Background(), &config.Configuration{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
