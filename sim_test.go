package chainsim_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/chainsim-dev/chainsim"
	"github.com/chainsim-dev/chainsim/assert"
	"github.com/chainsim-dev/chainsim/exec"
	"github.com/chainsim-dev/chainsim/mocks"
	"github.com/chainsim-dev/chainsim/outcome"
	"github.com/chainsim-dev/chainsim/types"
)

func newSimulator(t *testing.T, opts ...chainsim.SimOption) *chainsim.Simulator {
	t.Helper()
	sim, err := chainsim.NewSimulator(opts...)
	assert.NilError(t, err)
	return sim
}

// counterContract is a small stateful contract used across tests.
func counterContract() exec.Contract {
	return exec.Contract{
		"increment": func(env *exec.Env) error {
			count := 0
			if v, ok := env.StorageRead([]byte("count")); ok {
				count, _ = strconv.Atoi(string(v))
			}
			count++
			env.StorageWrite([]byte("count"), []byte(strconv.Itoa(count)))
			env.Return([]byte(strconv.Itoa(count)))
			return nil
		},
		"get": func(env *exec.Env) error {
			v, _ := env.StorageRead([]byte("count"))
			env.Return(v)
			return nil
		},
	}
}

func TestCallMutatesStorage(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("counter", counterContract()))
	assert.NilError(t, sim.Deploy("counter", []byte("counter")))

	co, err := sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.True(t, co.IsSuccess())
	assert.Equal(t, "1", string(co.ReturnValue()))

	co, err = sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.Equal(t, "2", string(co.ReturnValue()))

	v, err := sim.StorageRead("counter", []byte("count"))
	assert.NilError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestCallbackChainAndJointWait(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("orchestrator", exec.Contract{
		"run": func(env *exec.Env) error {
			left := env.Spawn(exec.Call{Receiver: "worker", Method: "produce", Args: []byte("L")})
			right := env.Spawn(exec.Call{Receiver: "worker", Method: "produce", Args: []byte("R")})
			combine := env.Spawn(exec.Call{
				Receiver: "orchestrator",
				Method:   "combine",
				After:    []exec.PromiseIndex{left, right},
			})
			env.ReturnForward(combine)
			return nil
		},
		"combine": func(env *exec.Env) error {
			var combined []byte
			for i := 0; i < env.DepCount(); i++ {
				dep, _ := env.DepResult(i)
				if !dep.Successful {
					return eris.New(dep.Reason)
				}
				combined = append(combined, dep.Value...)
			}
			env.Return(combined)
			return nil
		},
	}))
	assert.NilError(t, sim.RegisterContract("worker", exec.Contract{
		"produce": func(env *exec.Env) error {
			env.Logf("producing %s", env.Input())
			env.Return(env.Input())
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("orchestrator", []byte("orchestrator")))
	assert.NilError(t, sim.Deploy("worker", []byte("worker")))

	co, err := sim.Call("alice", "orchestrator", "run", nil)
	assert.NilError(t, err)
	assert.True(t, co.IsSuccess())
	assert.Equal(t, "LR", string(co.ReturnValue()))
	assert.Len(t, co.Receipts(), 4)
	assert.DeepEqual(t, []string{"producing L", "producing R"}, co.Logs())
}

// dexSimulator builds a sim where dex.swap asks an oracle for a price and a
// callback computes the final quote.
func dexSimulator(t *testing.T) *chainsim.Simulator {
	t.Helper()
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("dex", exec.Contract{
		"swap": func(env *exec.Env) error {
			price := env.Spawn(exec.Call{Receiver: "oracle", Method: "get_price"})
			quote := env.Spawn(exec.Call{
				Receiver: "dex",
				Method:   "on_price",
				Args:     env.Input(),
				After:    []exec.PromiseIndex{price},
			})
			env.ReturnForward(quote)
			return nil
		},
		"on_price": func(env *exec.Env) error {
			dep, ok := env.DepResult(0)
			if !ok || !dep.Successful {
				return eris.New("price lookup failed")
			}
			var resp struct {
				Price string `json:"price"`
			}
			if err := json.Unmarshal(dep.Value, &resp); err != nil {
				return eris.Wrap(err, "bad oracle response")
			}
			price, err := strconv.ParseFloat(resp.Price, 64)
			if err != nil {
				return eris.Wrap(err, "bad price")
			}
			amount, err := strconv.Atoi(string(env.Input()))
			if err != nil {
				return eris.Wrap(err, "bad amount")
			}
			env.Return([]byte(strconv.FormatFloat(price*float64(amount), 'f', 2, 64)))
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("dex", []byte("dex")))
	assert.NilError(t, sim.MockJSON("oracle", map[string]string{"price": "5.50"}))
	return sim
}

func TestMockedOracle(t *testing.T) {
	sim := dexSimulator(t)

	co, err := sim.Call("alice", "dex", "swap", []byte("2"))
	assert.NilError(t, err)
	assert.True(t, co.IsSuccess())
	assert.Equal(t, "11.00", string(co.ReturnValue()))

	receipts := co.Receipts()
	assert.Len(t, receipts, 3)
	assert.True(t, receipts[1].Mocked)
	assert.Equal(t, types.AccountID("oracle"), receipts[1].Receiver)
	assert.False(t, receipts[0].Mocked)
}

func TestDeterministicReplay(t *testing.T) {
	first := dexSimulator(t)
	second := dexSimulator(t)

	a, err := first.Call("alice", "dex", "swap", []byte("3"))
	assert.NilError(t, err)
	b, err := second.Call("alice", "dex", "swap", []byte("3"))
	assert.NilError(t, err)

	assert.Equal(t, string(a.ReturnValue()), string(b.ReturnValue()))
	assert.Equal(t, a.GasUsed(), b.GasUsed())
	assert.DeepEqual(t, a.Receipts(), b.Receipts())
}

func TestPanicDiscardsWrites(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("app", exec.Contract{
		"write_then_panic": func(env *exec.Env) error {
			env.StorageWrite([]byte("poison"), []byte("1"))
			env.Panic("abort")
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("app", []byte("app")))

	co, err := sim.Call("alice", "app", "write_then_panic", nil)
	assert.NilError(t, err)
	assert.False(t, co.IsSuccess())
	assert.Equal(t, outcome.StatusPanic, co.Root().Status.Kind)
	assert.Equal(t, "abort", co.Error())

	v, err := sim.StorageRead("app", []byte("poison"))
	assert.NilError(t, err)
	assert.Nil(t, v)
}

func TestMockOverridesDeployedContractUntilCleared(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("counter", counterContract()))
	assert.NilError(t, sim.Deploy("counter", []byte("counter")))
	assert.NilError(t, sim.MockStatic("counter", "increment", []byte("mocked")))

	co, err := sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.Equal(t, "mocked", string(co.ReturnValue()))
	assert.True(t, co.Root().Mocked)

	// The real contract never ran.
	v, err := sim.StorageRead("counter", []byte("count"))
	assert.NilError(t, err)
	assert.Nil(t, v)

	assert.NilError(t, sim.ClearMock("counter"))
	co, err = sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.Equal(t, "1", string(co.ReturnValue()))
	assert.False(t, co.Root().Mocked)
}

func TestMockFailureAndPanicStatuses(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.MockFailure("flaky", "service down"))
	co, err := sim.Call("alice", "flaky", "anything", nil)
	assert.NilError(t, err)
	assert.False(t, co.IsSuccess())
	assert.Equal(t, outcome.StatusFailure, co.Root().Status.Kind)
	assert.Equal(t, "service down", co.Error())

	assert.NilError(t, sim.MockPanic("flaky", "corrupted"))
	co, err = sim.Call("alice", "flaky", "anything", nil)
	assert.NilError(t, err)
	assert.Equal(t, outcome.StatusPanic, co.Root().Status.Kind)
}

func TestMockFuncInspectsArguments(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.MockFunc("oracle", func(method string, args []byte) mocks.Response {
		if method == "get_price" && string(args) == "gold" {
			return mocks.Success([]byte("1900"))
		}
		return mocks.Failure("unknown asset")
	}))

	co, err := sim.Call("alice", "oracle", "get_price", []byte("gold"))
	assert.NilError(t, err)
	assert.Equal(t, "1900", string(co.ReturnValue()))

	co, err = sim.Call("alice", "oracle", "get_price", []byte("tin"))
	assert.NilError(t, err)
	assert.False(t, co.IsSuccess())
}

func TestViewDoesNotMutate(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("counter", counterContract()))
	assert.NilError(t, sim.Deploy("counter", []byte("counter")))

	_, err := sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)

	v, err := sim.View("counter", "get", nil)
	assert.NilError(t, err)
	assert.Equal(t, "1", string(v))

	// A view that writes is a protocol violation, not a silent no-op.
	_, err = sim.View("counter", "increment", nil)
	assert.ErrorContains(t, err, "view violation")
}

func TestBlockControls(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("clock", exec.Contract{
		"now": func(env *exec.Env) error {
			env.Return([]byte(strconv.FormatUint(env.BlockHeight(), 10)))
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("clock", []byte("clock")))

	assert.Equal(t, uint64(1), sim.BlockHeight())
	assert.Equal(t, uint64(0), sim.BlockTimestamp())

	v, err := sim.View("clock", "now", nil)
	assert.NilError(t, err)
	assert.Equal(t, "1", string(v))

	sim.AdvanceBlocks(9)
	assert.Equal(t, uint64(10), sim.BlockHeight())
	assert.Equal(t, uint64(9_000_000_000), sim.BlockTimestamp())

	v, err = sim.View("clock", "now", nil)
	assert.NilError(t, err)
	assert.Equal(t, "10", string(v))

	sim.SetBlockHeight(500)
	sim.SetBlockTimestamp(123)
	assert.Equal(t, uint64(500), sim.BlockHeight())
	assert.Equal(t, uint64(123), sim.BlockTimestamp())
}

func TestCallBuilder(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("echo", exec.Contract{
		"shout": func(env *exec.Env) error {
			env.Return(append(env.Input(), '!'))
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("echo", []byte("echo")))
	assert.NilError(t, sim.CreateAccount("alice", 1000))

	co, err := sim.Prepare("echo", "shout").
		Signer("alice").
		Args([]byte("hey")).
		Deposit(10).
		Gas(types.DefaultGas).
		Execute()
	assert.NilError(t, err)
	assert.Equal(t, "hey!", string(co.ReturnValue()))
	assert.Equal(t, types.AccountID("alice"), co.Root().Predecessor)

	aliceBalance, err := sim.Balance("alice")
	assert.NilError(t, err)
	assert.Equal(t, types.Balance(990), aliceBalance)
}

func TestCallJSONAndOutcomeJSON(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.RegisterContract("echo", exec.Contract{
		"roundtrip": func(env *exec.Env) error {
			env.Return(env.Input())
			return nil
		},
	}))
	assert.NilError(t, sim.Deploy("echo", []byte("echo")))

	co, err := sim.CallJSON("alice", "echo", "roundtrip", map[string]int{"n": 7})
	assert.NilError(t, err)
	decoded, err := outcome.JSON[map[string]int](co)
	assert.NilError(t, err)
	assert.Equal(t, 7, decoded["n"])
}

func TestAccountInspection(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.CreateAccount("alice", 100))
	assert.NilError(t, sim.Deploy("app", []byte("code")))

	accounts, err := sim.Accounts()
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"alice", "app"}, accounts)

	has, err := sim.HasContract("app")
	assert.NilError(t, err)
	assert.True(t, has)
	has, err = sim.HasContract("alice")
	assert.NilError(t, err)
	assert.False(t, has)

	balance, err := sim.Balance("nobody")
	assert.NilError(t, err)
	assert.Equal(t, types.Balance(0), balance)
}

func TestDeployFile(t *testing.T) {
	sim := newSimulator(t)
	path := filepath.Join(t.TempDir(), "contract.code")
	assert.NilError(t, os.WriteFile(path, []byte("filecode"), 0o600))

	assert.NilError(t, sim.DeployFile("app", path))
	has, err := sim.HasContract("app")
	assert.NilError(t, err)
	assert.True(t, has)

	err = sim.DeployFile("app", filepath.Join(t.TempDir(), "missing.code"))
	assert.Check(t, err != nil)
	assert.Contains(t, err.Error(), "failed to read code file")
}

func TestInvalidAccountIDsRejected(t *testing.T) {
	sim := newSimulator(t)
	_, err := sim.Call("Alice", "app", "m", nil)
	assert.ErrorContains(t, err, "invalid account id")
	_, err = sim.Call("alice", "UPPER", "m", nil)
	assert.ErrorContains(t, err, "invalid account id")
	assert.ErrorContains(t, sim.Deploy("", []byte("x")), "invalid account id")
}

func TestCloseStopsTheSession(t *testing.T) {
	sim := newSimulator(t)
	assert.NilError(t, sim.Close())

	_, err := sim.Call("alice", "app", "m", nil)
	assert.ErrorIs(t, err, chainsim.ErrNotReady)
	assert.ErrorIs(t, sim.Close(), chainsim.ErrNotReady)
}

func TestRedisBackedSession(t *testing.T) {
	mr := miniredis.RunT(t)
	sim := newSimulator(t, chainsim.WithRedisStorage(mr.Addr(), ""))
	assert.NilError(t, sim.RegisterContract("counter", counterContract()))
	assert.NilError(t, sim.Deploy("counter", []byte("counter")))

	co, err := sim.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.Equal(t, "1", string(co.ReturnValue()))

	// A second session over the same redis instance sees the state.
	second := newSimulator(t, chainsim.WithRedisStorage(mr.Addr(), ""))
	assert.NilError(t, second.RegisterContract("counter", counterContract()))
	co, err = second.Call("alice", "counter", "increment", nil)
	assert.NilError(t, err)
	assert.Equal(t, "2", string(co.ReturnValue()))
}

func TestWithDefaultGas(t *testing.T) {
	sim := newSimulator(t, chainsim.WithDefaultGas(exec.BaseGas-1))
	assert.NilError(t, sim.RegisterContract("app", exec.Contract{
		"noop": func(env *exec.Env) error { return nil },
	}))
	assert.NilError(t, sim.Deploy("app", []byte("app")))

	co, err := sim.Call("alice", "app", "noop", nil)
	assert.NilError(t, err)
	assert.False(t, co.IsSuccess())
	assert.Contains(t, co.Error(), "out of gas")
}
