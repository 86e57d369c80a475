package chainsim

import (
	"os"

	"github.com/JeremyLoy/config"
)

// SimConfig is the environment-derived configuration of a simulation
// session. Every field can also be set programmatically through options,
// which take precedence.
type SimConfig struct {
	RedisAddress  string `config:"CHAINSIM_REDIS_ADDRESS"`
	RedisPassword string `config:"CHAINSIM_REDIS_PASSWORD"`
	DefaultGas    uint64 `config:"CHAINSIM_DEFAULT_GAS"`
	LogLevel      string `config:"CHAINSIM_LOG_LEVEL"`
	LogPretty     bool   `config:"CHAINSIM_LOG_PRETTY"`
}

// GetSimConfig loads SimConfig from the environment, with defaults for
// anything unset.
func GetSimConfig() SimConfig {
	cfg := SimConfig{
		LogLevel: getEnv("CHAINSIM_LOG_LEVEL", "info"),
	}
	if err := config.FromEnv().To(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
