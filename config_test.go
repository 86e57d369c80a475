package chainsim

import (
	"testing"

	"github.com/chainsim-dev/chainsim/assert"
)

func TestSimConfigDefaults(t *testing.T) {
	cfg := GetSimConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.RedisAddress)
	assert.Equal(t, uint64(0), cfg.DefaultGas)
	assert.False(t, cfg.LogPretty)
}

func TestSimConfigLoadFromEnv(t *testing.T) {
	t.Setenv("CHAINSIM_REDIS_ADDRESS", "localhost:6379")
	t.Setenv("CHAINSIM_REDIS_PASSWORD", "hunter2")
	t.Setenv("CHAINSIM_DEFAULT_GAS", "5000000")
	t.Setenv("CHAINSIM_LOG_LEVEL", "debug")
	t.Setenv("CHAINSIM_LOG_PRETTY", "true")

	cfg := GetSimConfig()
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, "hunter2", cfg.RedisPassword)
	assert.Equal(t, uint64(5_000_000), cfg.DefaultGas)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
}
