package chainsim

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/chainsim-dev/chainsim/exec"
	"github.com/chainsim-dev/chainsim/state"
	"github.com/chainsim-dev/chainsim/types"
)

// SimOption augments how a Simulator is constructed.
type SimOption struct {
	simOption func(*Simulator)
}

// WithDefaultGas sets the prepaid gas attached to calls that do not specify
// their own.
func WithDefaultGas(gas types.Gas) SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			s.defaultGas = gas
		},
	}
}

// WithExecutor replaces the default FuncExecutor with a custom executor
// implementation. RegisterContract is unavailable when this option is used.
func WithExecutor(executor exec.Executor) SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			s.executor = executor
			s.funcExec = nil
		},
	}
}

// WithStorage sets the key/value backend the account store runs on. The
// default is an in-memory map.
func WithStorage(db state.PrimitiveStorage) SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			s.db = db
		},
	}
}

// WithRedisStorage points the account store at a redis instance. If addr is
// empty, the environment variable CHAINSIM_REDIS_ADDRESS is used.
func WithRedisStorage(addr, password string) SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			if addr == "" {
				addr = s.cfg.RedisAddress
			}
			s.db = state.NewRedisStorageWithOptions(addr, password)
		},
	}
}

// WithLogger replaces the Simulator's logger.
func WithLogger(logger zerolog.Logger) SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			s.logger = logger
		},
	}
}

// WithPrettyLog switches the logger to human-readable console output.
func WithPrettyLog() SimOption {
	return SimOption{
		simOption: func(s *Simulator) {
			s.logger = s.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		},
	}
}
